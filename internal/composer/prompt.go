// Package composer assembles the prompt sent to the language model and parses
// the free-text completion coming back.
package composer

import (
	"strings"

	"github.com/sagelearn/sage/internal/insight"
)

// BuildPrompt constructs the instructional prompt from the question, the
// ranked study context, the extracted learning stats, and the weak-concept
// list. Pure: no I/O, deterministic for identical input.
func BuildPrompt(question, context string, stats insight.Stats, weakConcepts []string) string {
	var sb strings.Builder

	sb.WriteString("You are a patient tutor helping a student work through their study material. ")
	sb.WriteString("Answer the question below using the material provided, keeping the explanation clear and encouraging.\n")

	sb.WriteString("\n[Study Material]\n")
	if strings.TrimSpace(context) == "" {
		sb.WriteString("(no material provided)\n")
	} else {
		sb.WriteString(context)
		sb.WriteString("\n")
	}

	if len(stats.AreasOfDifficulty) > 0 {
		sb.WriteString("\n[Areas of Difficulty]\n")
		writeList(&sb, stats.AreasOfDifficulty)
	}

	if len(stats.LearningProgress) > 0 {
		sb.WriteString("\n[Learning Progress]\n")
		writeList(&sb, stats.LearningProgress)
	}

	if len(weakConcepts) > 0 {
		sb.WriteString("\n[Concepts to Reinforce]\n")
		sb.WriteString(strings.Join(weakConcepts, ", "))
		sb.WriteString("\n")
	}

	sb.WriteString("\n[Question]\n")
	sb.WriteString(question)
	sb.WriteString("\n\nGround the answer in the study material where possible, address the student's weak areas directly, and close with one short suggestion for what to review next.")

	return sb.String()
}

func writeList(sb *strings.Builder, items []string) {
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
