package generation

import (
	"fmt"
	"strings"

	"github.com/pixmint/genapi/internal/model"
)

// maskEditSuffix is appended to an edit instruction when a mask is
// supplied.
const maskEditSuffix = "apply edits only to regions marked in the mask: white=edit, black=keep"

// CompilePrompt builds the final instruction text from its segments in
// fixed order: base instruction, quality annotation, filters
// annotation, free-form prompt text. Each non-empty segment goes on
// its own line; empty segments are dropped entirely.
func CompilePrompt(base, quality string, filters []model.Filter, promptText string) string {
	var segments []string

	if base != "" {
		segments = append(segments, base)
	}
	if quality != "" {
		segments = append(segments, "Quality: "+quality)
	}
	if len(filters) > 0 {
		parts := make([]string, 0, len(filters))
		for _, f := range filters {
			if f.Value != nil {
				parts = append(parts, fmt.Sprintf("%s=%v", f.Slug, f.Value))
			} else {
				parts = append(parts, f.Slug)
			}
		}
		segments = append(segments, "Filters: "+strings.Join(parts, ", "))
	}
	if promptText != "" {
		segments = append(segments, promptText)
	}

	return strings.Join(segments, "\n")
}

// editInstruction builds the edit-flow instruction: the caller's
// prompt, with the mask suffix appended iff a mask is present.
func editInstruction(prompt string, hasMask bool) string {
	if !hasMask {
		return prompt
	}
	return prompt + "\n" + maskEditSuffix
}
