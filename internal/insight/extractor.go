// Package insight extracts coarse learning signals from raw study material.
// Extraction is a best-effort heuristic over structural markers, not a parser
// with a grammar: unrecognized corpora yield empty stats, never an error.
package insight

import (
	"regexp"
	"strings"
)

// maxItemsPerCategory caps each stats list; further matches are ignored.
const maxItemsPerCategory = 10

// Stats holds the learning signals extracted from a study corpus.
// Derived per request, never persisted.
type Stats struct {
	AreasOfDifficulty []string
	LearningProgress  []string
}

// Extractor derives Stats from a corpus. The pipeline treats extraction as
// replaceable and best-effort; implementations must not fail.
type Extractor interface {
	Extract(corpus string) Stats
}

// RegexExtractor recognizes section headings ("Areas of Difficulty",
// "Learning Progress" and close variants), bullet and numbered list items,
// bold spans, percentage figures, and score mentions.
type RegexExtractor struct{}

var _ Extractor = (*RegexExtractor)(nil)

// NewRegexExtractor creates the default heuristic extractor.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

type section int

const (
	sectionNone section = iota
	sectionDifficulty
	sectionProgress
	sectionOther
)

var (
	markdownHeadingRe = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*$`)
	boldLineRe        = regexp.MustCompile(`^\*\*([^*]+)\*\*:?\s*$`)
	labelLineRe       = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 '&/-]{2,60}):\s*$`)
	inlineLabelRe     = regexp.MustCompile(`^(?:\*\*)?([A-Za-z][^:\n]{2,60}?)(?:\*\*)?:\s+(.+)$`)

	difficultyRe = regexp.MustCompile(`(?i)areas?\s+of\s+difficulty|\bdifficult\w*\b|\bstruggl\w*\b|\bweak\w*\b|\bchalleng\w*\b|needs?\s+(?:more\s+)?work`)
	progressRe   = regexp.MustCompile(`(?i)learning\s+progress|\bprogress\b|\bcompleted?\b|\bmaster\w*\b|\bimprov\w*\b|\bstrength\w*\b|\bachiev\w*\b|\bmilestone\w*\b`)

	bulletRe   = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	boldSpanRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	percentRe  = regexp.MustCompile(`\d{1,3}(?:\.\d+)?\s*%`)
	scoreRe    = regexp.MustCompile(`(?i)\bscored?\b|\b\d+\s*(?:/|out\s+of)\s*\d+\b`)
)

// Extract scans the corpus line-wise. Headings open a category section; the
// markers found inside a difficulty or progress section feed that category.
// Up to 10 deduplicated (exact equality after trimming) strings per category.
func (x *RegexExtractor) Extract(corpus string) Stats {
	var difficulty, progress bucket
	category := sectionNone

	for _, line := range strings.Split(corpus, "\n") {
		trimmed := strings.TrimSpace(line)

		if title, ok := headingText(trimmed); ok {
			category = classify(title)
			continue
		}

		// "Label: a, b" lines switch sections only when the label is
		// recognized; otherwise they are ordinary content.
		if title, rest, ok := inlineLabel(trimmed); ok {
			if cat := classify(title); cat != sectionOther {
				category = cat
				b := bucketFor(category, &difficulty, &progress)
				for _, item := range splitList(rest) {
					b.add(item)
				}
				continue
			}
		}

		b := bucketFor(category, &difficulty, &progress)
		if b == nil {
			continue
		}
		for _, item := range lineItems(trimmed) {
			b.add(item)
		}
	}

	return Stats{
		AreasOfDifficulty: difficulty.items,
		LearningProgress:  progress.items,
	}
}

// headingText returns the heading title when the line is a heading marker:
// a markdown heading, a bold-only line, or a short label line ending in ":".
func headingText(line string) (string, bool) {
	if m := markdownHeadingRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := boldLineRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	if m := labelLineRe.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}

// inlineLabel matches "Label: item, item" lines that carry their content on
// the same line as the heading.
func inlineLabel(line string) (title, rest string, ok bool) {
	m := inlineLabelRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func classify(title string) section {
	switch {
	case difficultyRe.MatchString(title):
		return sectionDifficulty
	case progressRe.MatchString(title):
		return sectionProgress
	default:
		return sectionOther
	}
}

func bucketFor(cat section, difficulty, progress *bucket) *bucket {
	switch cat {
	case sectionDifficulty:
		return difficulty
	case sectionProgress:
		return progress
	default:
		return nil
	}
}

// lineItems pulls the signal strings out of one section line: a list item's
// text, each bold span, or the whole line when it mentions a percentage or
// a score.
func lineItems(line string) []string {
	if line == "" {
		return nil
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return []string{stripBold(m[1])}
	}
	if spans := boldSpanRe.FindAllStringSubmatch(line, -1); spans != nil {
		items := make([]string, 0, len(spans))
		for _, s := range spans {
			items = append(items, s[1])
		}
		return items
	}
	if percentRe.MatchString(line) || scoreRe.MatchString(line) {
		return []string{line}
	}
	return nil
}

// splitList breaks "a, b; c" style inline enumerations into items.
func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(stripBold(p)); p != "" {
			items = append(items, p)
		}
	}
	return items
}

func stripBold(s string) string {
	return boldSpanRe.ReplaceAllString(s, "$1")
}

// bucket accumulates trimmed, deduplicated strings up to the category cap.
type bucket struct {
	items []string
	seen  map[string]bool
}

func (b *bucket) add(s string) {
	s = strings.TrimSpace(s)
	if s == "" || b.seen[s] || len(b.items) >= maxItemsPerCategory {
		return
	}
	if b.seen == nil {
		b.seen = make(map[string]bool)
	}
	b.items = append(b.items, s)
	b.seen[s] = true
}
