package composer

import (
	"strings"
	"testing"
)

func TestParseResponse_TrimsAnswer(t *testing.T) {
	parsed := ParseResponse("  \n An answer. \n\n", "")
	if parsed.Answer != "An answer." {
		t.Errorf("answer = %q, want %q", parsed.Answer, "An answer.")
	}
}

func TestParseResponse_CitationsFromHeadings(t *testing.T) {
	context := "# Kinematics\nObjects in motion stay in motion.\n\n# Dynamics\nForce equals mass times acceleration.\n"

	parsed := ParseResponse("answer", context)
	if len(parsed.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d: %v", len(parsed.Citations), parsed.Citations)
	}
	if !strings.HasPrefix(parsed.Citations[0], "# Kinematics") {
		t.Errorf("first citation should start with its heading: %q", parsed.Citations[0])
	}
	if !strings.Contains(parsed.Citations[1], "mass times acceleration") {
		t.Errorf("second citation missing section body: %q", parsed.Citations[1])
	}
}

func TestParseResponse_CitationsCapped(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 5; i++ {
		sb.WriteString("## Section\nBody text here.\n\n")
	}

	parsed := ParseResponse("answer", sb.String())
	if len(parsed.Citations) != 3 {
		t.Errorf("expected 3 citations, got %d", len(parsed.Citations))
	}
}

func TestParseResponse_CitationPreviewTruncated(t *testing.T) {
	context := "# Gravity\n" + strings.Repeat("orbit ", 40)

	parsed := ParseResponse("answer", context)
	if len(parsed.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(parsed.Citations))
	}
	cit := parsed.Citations[0]
	if !strings.HasSuffix(cit, "...") {
		t.Errorf("long preview should be truncated with ellipsis: %q", cit)
	}
	if len(cit) > citationPreviewLen+3 {
		t.Errorf("preview too long: %d chars", len(cit))
	}
	if strings.Contains(cit, "\n") {
		t.Errorf("preview should be a single line: %q", cit)
	}
}

func TestParseResponse_NoHeadingsWholeContext(t *testing.T) {
	parsed := ParseResponse("answer", "Plain text without any structure.")
	if len(parsed.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(parsed.Citations))
	}
	if parsed.Citations[0] != "Plain text without any structure." {
		t.Errorf("citation = %q", parsed.Citations[0])
	}
}

func TestParseResponse_LeadingTextBeforeFirstHeading(t *testing.T) {
	context := "Intro paragraph.\n\n# First\nSection body.\n"

	parsed := ParseResponse("answer", context)
	if len(parsed.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d: %v", len(parsed.Citations), parsed.Citations)
	}
	if parsed.Citations[0] != "Intro paragraph." {
		t.Errorf("leading text should form the first citation, got %q", parsed.Citations[0])
	}
}

func TestParseResponse_BoldLabelSplitsSections(t *testing.T) {
	context := "**Kinematics**:\nMotion basics.\n\n**Dynamics**\nForces at work.\n"

	parsed := ParseResponse("answer", context)
	if len(parsed.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d: %v", len(parsed.Citations), parsed.Citations)
	}
}

func TestParseResponse_EmptyContext(t *testing.T) {
	parsed := ParseResponse("the answer", "   ")
	if parsed.Citations != nil {
		t.Errorf("expected no citations, got %v", parsed.Citations)
	}
	if parsed.Themes != "" {
		t.Errorf("expected no themes, got %q", parsed.Themes)
	}
	if parsed.Answer != "the answer" {
		t.Errorf("answer = %q", parsed.Answer)
	}
}

func TestParseResponse_ThemesDetected(t *testing.T) {
	completion := "The model learns from data. A neural network refines the model over many passes."

	parsed := ParseResponse(completion, "")
	if parsed.Themes != "machine learning" {
		t.Errorf("themes = %q, want %q", parsed.Themes, "machine learning")
	}
}

func TestParseResponse_ThemesCountPlurals(t *testing.T) {
	parsed := ParseResponse("Models and more models train other models.", "")
	if parsed.Themes != "machine learning" {
		t.Errorf("themes = %q, want %q", parsed.Themes, "machine learning")
	}
}

func TestParseResponse_ThemesRequireThreeHits(t *testing.T) {
	parsed := ParseResponse("A neural model.", "")
	if parsed.Themes != "" {
		t.Errorf("two keyword hits should not qualify, got %q", parsed.Themes)
	}
}

func TestParseResponse_ThemesCappedAtFour(t *testing.T) {
	completion := strings.Join([]string{
		"algorithm algorithm algorithm",
		"code code code",
		"algebra algebra algebra",
		"physics physics physics",
		"history history history",
	}, " ")

	parsed := ParseResponse(completion, "")
	want := "machine learning, programming, mathematics, science"
	if parsed.Themes != want {
		t.Errorf("themes = %q, want %q", parsed.Themes, want)
	}
}

func TestParseResponse_ThemeKeywordsMatchWholeWords(t *testing.T) {
	// "software" and "warm" contain "war" but must not count for history.
	parsed := ParseResponse("software software software warm warm warm", "")
	if parsed.Themes != "" {
		t.Errorf("substring matches should not qualify, got %q", parsed.Themes)
	}
}

func TestParseResponse_CombinesCompletionAndContextForThemes(t *testing.T) {
	parsed := ParseResponse("The equation balances.", "Calculus and algebra share notation.")
	if parsed.Themes != "mathematics" {
		t.Errorf("themes = %q, want %q", parsed.Themes, "mathematics")
	}
}
