// Package extract recovers ordered generation prompts from free-form
// model responses.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/pkg/types"
)

// DefaultMinLength is the minimum candidate length, in characters,
// accepted by the fenced and trailing-paragraph strategies.
const DefaultMinLength = 50

var (
	sectionHeader = regexp.MustCompile(`\*{0,2}###\s*(\d+)\.\s*`)
	sectionName   = regexp.MustCompile(`[^\n*]+`)
)

// Strategy returns the instruction body of a segment, if it finds one.
type Strategy func(segment string) (string, bool)

// Extractor turns raw analysis text into prompt specs. A nil Strategies
// slice means DefaultChain(MinLength).
type Extractor struct {
	MinLength  int
	Strategies []Strategy
	Logger     *zap.Logger
}

// New returns an Extractor with the default strategy chain.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{MinLength: DefaultMinLength, Logger: logger}
}

// DefaultChain is the strategy priority list: labeled marker, fenced
// block, then the paragraph after a rationale heading.
func DefaultChain(minLen int) []Strategy {
	return []Strategy{
		LabeledBlock,
		FencedBlock(minLen),
		TrailingParagraph(minLen),
	}
}

// Segment is one numbered section of the raw text.
type Segment struct {
	Number int
	Name   string
	Body   string
}

// Segments splits raw text at numbered "### N." headers. Text before the
// first header is discarded.
func Segments(raw string) []Segment {
	locs := sectionHeader.FindAllStringSubmatchIndex(raw, -1)
	segs := make([]Segment, 0, len(locs))
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		n, err := strconv.Atoi(raw[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		body := raw[loc[1]:end]
		name := fmt.Sprintf("Image %d", n)
		if m := sectionName.FindString(strings.TrimSpace(body)); m != "" {
			if trimmed := strings.TrimSpace(m); trimmed != "" {
				name = trimmed
			}
		}
		segs = append(segs, Segment{Number: n, Name: name, Body: body})
	}
	return segs
}

// Extract runs the strategy chain over every numbered section. Sections
// with no candidate are dropped with a warning. The result is ordered by
// declared section number and indexed 1..N.
func (e *Extractor) Extract(raw string) []types.PromptSpec {
	var out []types.PromptSpec
	for _, seg := range Segments(raw) {
		body, ok := e.first(seg.Body)
		if !ok {
			e.logger().Warn("no prompt found for section",
				zap.Int("section", seg.Number),
				zap.String("name", truncate(seg.Name, 30)))
			continue
		}
		out = append(out, types.PromptSpec{
			Section:    seg.Number,
			Name:       seg.Name,
			Body:       Normalize(body),
			SourceType: types.SourceNatural,
			Kind:       ShotKind(seg.Number),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Section < out[j].Section })
	for i := range out {
		out[i].Index = i + 1
	}
	return out
}

func (e *Extractor) first(segment string) (string, bool) {
	chain := e.Strategies
	if chain == nil {
		minLen := e.MinLength
		if minLen <= 0 {
			minLen = DefaultMinLength
		}
		chain = DefaultChain(minLen)
	}
	for _, s := range chain {
		if body, ok := s(segment); ok && strings.TrimSpace(body) != "" {
			return body, true
		}
	}
	return "", false
}

func (e *Extractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
