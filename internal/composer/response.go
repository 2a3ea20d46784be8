package composer

import (
	"regexp"
	"strings"
)

const (
	maxCitations       = 3
	citationPreviewLen = 120
	maxThemes          = 4
	themeMinHits       = 3
)

// Parsed holds the structured pieces recovered from a model completion.
type Parsed struct {
	Answer    string
	Citations []string
	Themes    string
}

// sectionHeadingRe marks the boundaries citations are cut along: markdown
// headings and bold stand-alone labels.
var sectionHeadingRe = regexp.MustCompile(`(?m)^(?:#{1,6}[ \t]+[^\n]+|\*\*[^*\n]+\*\*:?[ \t]*)$`)

type themeCategory struct {
	name     string
	patterns []*regexp.Regexp
}

var themeCategories = buildThemeCategories()

func buildThemeCategories() []themeCategory {
	defs := []struct {
		name     string
		keywords []string
	}{
		{"machine learning", []string{"machine learning", "neural", "training data", "model", "algorithm", "deep learning"}},
		{"programming", []string{"code", "programming", "function", "variable", "debug", "compiler"}},
		{"mathematics", []string{"math", "equation", "formula", "calculus", "algebra", "geometry"}},
		{"science", []string{"physics", "chemistry", "biology", "experiment", "hypothesis", "scientific"}},
		{"history", []string{"history", "century", "empire", "revolution", "ancient", "war"}},
		{"study skills", []string{"study", "practice", "review", "quiz", "exam", "flashcard"}},
	}

	cats := make([]themeCategory, len(defs))
	for i, def := range defs {
		patterns := make([]*regexp.Regexp, len(def.keywords))
		for j, kw := range def.keywords {
			patterns[j] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `s?\b`)
		}
		cats[i] = themeCategory{name: def.name, patterns: patterns}
	}
	return cats
}

// ParseResponse extracts the answer, supporting citations, and detected themes
// from a raw completion. It never fails: when nothing structured can be
// recovered the result degrades to the trimmed completion with no citations
// and no themes.
func ParseResponse(completion, context string) Parsed {
	return Parsed{
		Answer:    strings.TrimSpace(completion),
		Citations: extractCitations(context),
		Themes:    matchThemes(completion + "\n" + context),
	}
}

// extractCitations splits the retrieved context on heading markers and returns
// a short preview of each leading section, capped at maxCitations.
func extractCitations(context string) []string {
	trimmed := strings.TrimSpace(context)
	if trimmed == "" {
		return nil
	}

	locs := sectionHeadingRe.FindAllStringIndex(context, -1)
	var sections []string
	if len(locs) == 0 {
		sections = []string{trimmed}
	} else {
		if lead := strings.TrimSpace(context[:locs[0][0]]); lead != "" {
			sections = append(sections, lead)
		}
		for i, loc := range locs {
			end := len(context)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			if sec := strings.TrimSpace(context[loc[0]:end]); sec != "" {
				sections = append(sections, sec)
			}
		}
	}

	var citations []string
	for _, sec := range sections {
		citations = append(citations, preview(sec, citationPreviewLen))
		if len(citations) == maxCitations {
			break
		}
	}
	return citations
}

// preview flattens the section onto one line and cuts it at a word boundary.
func preview(s string, limit int) string {
	flat := strings.Join(strings.Fields(s), " ")
	if len(flat) <= limit {
		return flat
	}
	cut := flat[:limit]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

// matchThemes scores each category by keyword occurrences across the combined
// completion and context, keeping categories with at least themeMinHits
// matches, capped at maxThemes, joined with ", ".
func matchThemes(text string) string {
	var matched []string
	for _, cat := range themeCategories {
		hits := 0
		for _, p := range cat.patterns {
			hits += len(p.FindAllStringIndex(text, -1))
		}
		if hits >= themeMinHits {
			matched = append(matched, cat.name)
			if len(matched) == maxThemes {
				break
			}
		}
	}
	return strings.Join(matched, ", ")
}
