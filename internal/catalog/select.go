package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/internal/genai"
	"github.com/yourorg/shotdeck/pkg/types"
)

const selectInstruction = `You are preparing e-commerce product images. From the file names below, pick the single image that best represents the product as a main listing photo (a clean, front-facing shot of the whole product is preferred over details, packaging or size charts).

Answer with the file name only.

%s`

// selectMain asks the service to pick the main image among images by file
// name. An error or an answer naming no candidate falls back to images[0].
func (r *Resolver) selectMain(ctx context.Context, images []string) (string, types.Usage) {
	var list strings.Builder
	for i, p := range images {
		fmt.Fprintf(&list, "%d. %s\n", i+1, filepath.Base(p))
	}
	req := genai.Request{
		Model: r.Model,
		Parts: []genai.Part{genai.TextPart(fmt.Sprintf(selectInstruction, list.String()))},
	}

	resp, err := r.Client.Invoke(ctx, req)
	if err == nil && resp == nil {
		err = genai.ErrEmptyResponse
	}
	if err != nil {
		r.logger().Warn("main image selection failed, using first image", zap.Error(err))
		return images[0], genai.Usage(req, nil)
	}
	u := genai.Usage(req, resp)

	if picked, ok := matchCandidate(resp.Text, images); ok {
		return picked, u
	}
	r.logger().Warn("main image answer names no candidate, using first image",
		zap.String("answer", truncate(resp.Text, 80)))
	return images[0], u
}

// matchCandidate returns the candidate whose base name appears in answer.
// When several do, the longest name wins so "a.jpg" never shadows
// "banana.jpg".
func matchCandidate(answer string, candidates []string) (string, bool) {
	answer = strings.ToLower(answer)
	best, bestLen := "", 0
	for _, c := range candidates {
		name := strings.ToLower(filepath.Base(c))
		if len(name) > bestLen && strings.Contains(answer, name) {
			best, bestLen = c, len(name)
		}
	}
	return best, best != ""
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
