// Package artifact owns the on-disk layout of runs.
//
//	<root>/<batch>/prompts_<mode>.json
//	<root>/<batch>/<task>/reference_<n><ext>
//	<root>/<batch>/<task>/analysis.txt
//	<root>/<batch>/<task>/NN_<label><ext>
//	<root>/<batch>/<task>/results.json
//	<root>/<batch>/<task>/summary.md
//	<root>/<batch>/<task>/report.yaml
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yourorg/shotdeck/pkg/types"
)

// Layout resolves paths under one output root.
type Layout struct {
	Root string
}

// BatchDir is the directory shared by every run of a batch.
func (l Layout) BatchDir(batch string) string {
	return filepath.Join(l.Root, SafeName(batch, 80))
}

// PromptsPath is the reusable prompt list of a batch and mode.
func (l Layout) PromptsPath(batch, mode string) string {
	return filepath.Join(l.BatchDir(batch), "prompts_"+mode+".json")
}

// NewTaskID returns a sortable, collision-resistant run id.
func NewTaskID(now time.Time) string {
	return now.Format("2006-01-02-15-04-05") + "-" + uuid.NewString()[:8]
}

// NewTask creates a fresh task directory for batch.
func (l Layout) NewTask(batch string, now time.Time) (*Dir, string, error) {
	id := NewTaskID(now)
	dir := filepath.Join(l.BatchDir(batch), id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create task dir: %w", err)
	}
	return &Dir{Path: dir}, id, nil
}

// Dir is a writable task directory.
type Dir struct {
	Path string
}

// Save writes data under name and returns the full path.
func (d *Dir) Save(name string, data []byte) (string, error) {
	p := filepath.Join(d.Path, filepath.Base(name))
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// CopyReference copies src to reference_<n><ext> and returns the new path.
func (d *Dir) CopyReference(src string, n int) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dst := filepath.Join(d.Path, fmt.Sprintf("reference_%d%s", n, strings.ToLower(filepath.Ext(src))))
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", err
	}
	return dst, out.Close()
}

// WriteAnalysis stores the raw extraction text.
func (d *Dir) WriteAnalysis(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := d.Save("analysis.txt", []byte(text))
	return err
}

// TitlesPath is the latest title set of a batch.
func (l Layout) TitlesPath(batch string) string {
	return filepath.Join(l.BatchDir(batch), "titles.json")
}

// WriteJSON stores v as indented JSON, creating parent dirs.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WritePrompts stores prompts as indented JSON, creating parent dirs.
func WritePrompts(path string, prompts []types.PromptSpec) error {
	return WriteJSON(path, prompts)
}

// ReadPrompts loads a prompt list written by WritePrompts. ok is false when
// the file does not exist.
func ReadPrompts(path string) (prompts []types.PromptSpec, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range prompts {
		if prompts[i].Index == 0 {
			prompts[i].Index = i + 1
		}
	}
	return prompts, true, nil
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_\-]`)

// SafeName replaces characters outside letters, digits, '_' and '-' with
// '_' and truncates to n runes.
func SafeName(s string, n int) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	if r := []rune(s); len(r) > n {
		s = string(r[:n])
	}
	if s == "" {
		s = "untitled"
	}
	return s
}

var extByMIME = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Ext picks a file extension for an artifact: from its declared MIME type,
// then from its content, then ".png".
func Ext(mimeType string, data []byte) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if ext, ok := extByMIME[base]; ok {
		return ext
	}
	if len(data) > 0 {
		if mt := mimetype.Detect(data); strings.HasPrefix(mt.String(), "image/") {
			if ext := mt.Extension(); ext != "" {
				return ext
			}
		}
	}
	return ".png"
}

// FileName is the artifact name of the seq-th (1-based) artifact of the
// task at index: NN_<label><ext>, with _<seq> for seq > 1.
func FileName(index int, label string, seq int, ext string) string {
	name := fmt.Sprintf("%02d_%s", index, SafeName(label, 30))
	if seq > 1 {
		name += fmt.Sprintf("_%d", seq)
	}
	return name + ext
}
