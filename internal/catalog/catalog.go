// Package catalog resolves the reference assets of a batch: it classifies
// input files, infers the batch id from the catalog layout and picks the
// main image.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/internal/docs"
	"github.com/yourorg/shotdeck/internal/filter"
	"github.com/yourorg/shotdeck/internal/genai"
	"github.com/yourorg/shotdeck/pkg/types"
)

// ErrAsset marks every failure to resolve or load reference assets.
var ErrAsset = errors.New("asset error")

// Assets is the resolved input of one run.
type Assets struct {
	BatchID   string
	MainImage string
	Images    []string
	Documents []string
}

// Resolver resolves assets under one catalog root. Client is optional; without
// it an ambiguous image set resolves to its first image.
type Resolver struct {
	Config filter.CatalogConfig
	Client genai.Client
	Model  string
	Logger *zap.Logger
}

// Resolve classifies paths and selects the main image. The usage of the
// disambiguation call is returned; it is zero when no call was made.
func (r *Resolver) Resolve(ctx context.Context, paths []string) (*Assets, types.Usage, error) {
	if len(paths) == 0 {
		return nil, types.Usage{}, fmt.Errorf("%w: no input files", ErrAsset)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, types.Usage{}, fmt.Errorf("%w: %v", ErrAsset, err)
		}
	}

	c := filter.Apply(paths, r.Config)
	for _, p := range c.Ignored {
		r.logger().Warn("skip unsupported file", zap.String("path", p))
	}
	if len(c.Images) == 0 {
		return nil, types.Usage{}, fmt.Errorf("%w: no image among %d input files", ErrAsset, len(paths))
	}

	batch, err := InferBatchID(r.Config.Dir, c.Images)
	if err != nil {
		return nil, types.Usage{}, err
	}

	a := &Assets{
		BatchID:   batch,
		Images:    c.Images,
		Documents: c.Documents,
		MainImage: c.Images[0],
	}
	var u types.Usage
	if len(c.Images) > 1 && r.Client != nil {
		a.MainImage, u = r.selectMain(ctx, c.Images)
	}
	r.logger().Info("assets resolved",
		zap.String("batch", a.BatchID),
		zap.String("main_image", filepath.Base(a.MainImage)),
		zap.Int("images", len(a.Images)),
		zap.Int("documents", len(a.Documents)),
	)
	return a, u, nil
}

// ProductFiles lists every non-ignored file of catalog/<id>, sorted by path.
func (r *Resolver) ProductFiles(id string) ([]string, error) {
	dir := filepath.Join(r.Config.Dir, id)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: product %q not found: %v", ErrAsset, id, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrAsset, dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filter.KindOf(p, r.Config) != filter.Ignored {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrAsset, dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: product %q has no usable files", ErrAsset, id)
	}
	sort.Strings(files)
	return files, nil
}

// InferBatchID returns the directory name directly below root in the first
// path that lives under root. Paths outside root fall back to the stem of
// the first path.
func InferBatchID(root string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("%w: no paths to infer batch id from", ErrAsset)
	}
	base := filepath.Base(filepath.Clean(root))
	for _, p := range paths {
		parts := strings.Split(filepath.ToSlash(filepath.Clean(p)), "/")
		// the last part is the file itself
		for i := 0; i < len(parts)-2; i++ {
			if parts[i] == base {
				return parts[i+1], nil
			}
		}
	}
	stem := strings.TrimSuffix(filepath.Base(paths[0]), filepath.Ext(paths[0]))
	if stem == "" {
		return "", fmt.Errorf("%w: cannot infer batch id from %v", ErrAsset, paths)
	}
	return stem, nil
}

var (
	imageTypes = []string{"image/*"}
	textTypes  = []string{"text/*"}
)

// LoadImage reads an image file into a blob part. The MIME type is sniffed
// from the content.
func LoadImage(path string) (genai.Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return genai.Part{}, fmt.Errorf("%w: %v", ErrAsset, err)
	}
	mt := mimetype.Detect(data).String()
	if !filter.MatchesContentType(mt, imageTypes) {
		return genai.Part{}, fmt.Errorf("%w: %s is not an image (%s)", ErrAsset, path, mt)
	}
	return genai.BlobPart(data, mt), nil
}

// LoadImages loads every path with LoadImage.
func LoadImages(paths []string) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(paths))
	for _, p := range paths {
		part, err := LoadImage(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// LoadDocument reads a supporting document. PDFs are sent inline; plain
// text documents become text parts. Other formats fail with ErrAsset.
func LoadDocument(path string) (genai.Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return genai.Part{}, fmt.Errorf("%w: %v", ErrAsset, err)
	}
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return genai.BlobPart(data, "application/pdf"), nil
	case filter.MatchesContentType(mt.String(), textTypes):
		text, err := docs.Text(data, mt.String())
		if err != nil {
			return genai.Part{}, fmt.Errorf("%w: %s: %v", ErrAsset, path, err)
		}
		return genai.TextPart(fmt.Sprintf("Document %s:\n%s", filepath.Base(path), text)), nil
	default:
		return genai.Part{}, fmt.Errorf("%w: unsupported document %s (%s)", ErrAsset, path, mt.String())
	}
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
