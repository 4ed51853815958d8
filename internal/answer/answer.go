// Package answer parses the model's structured reply and renders it as
// markdown for persistence. The model is prompted to reply with either a
// plain answer object or a step list; anything else is kept verbatim.
package answer

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Step struct {
	Title       string `json:"step"`
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
}

type Answer struct {
	Plain string
	Steps []Step
	Note  string
	// Raw holds the untouched model output when it was not valid JSON in
	// either known shape.
	Raw string
}

type wireAnswer struct {
	Answer string `json:"answer"`
	Steps  []Step `json:"steps"`
	Note   string `json:"note"`
}

// Parse decodes the accumulated stream text into an Answer. Unparseable
// output is never an error; the raw text is the answer.
func Parse(raw string) Answer {
	trimmed := strings.TrimSpace(raw)
	candidate := stripJSONFence(trimmed)

	var w wireAnswer
	if err := json.Unmarshal([]byte(candidate), &w); err == nil {
		if len(w.Steps) > 0 {
			return Answer{Steps: w.Steps, Note: strings.TrimSpace(w.Note)}
		}
		if strings.TrimSpace(w.Answer) != "" {
			return Answer{Plain: strings.TrimSpace(w.Answer)}
		}
	}
	return Answer{Raw: trimmed}
}

// Format renders the answer as markdown. Steps become numbered headings
// with fenced code blocks; the note trails after a rule.
func (a Answer) Format() string {
	if len(a.Steps) > 0 {
		var b strings.Builder
		for i, s := range a.Steps {
			fmt.Fprintf(&b, "### %d. %s\n\n", i+1, strings.TrimSpace(s.Title))
			if desc := strings.TrimSpace(s.Description); desc != "" {
				b.WriteString(desc)
				b.WriteString("\n\n")
			}
			if code := strings.TrimSpace(s.Code); code != "" {
				b.WriteString("```javascript\n")
				b.WriteString(code)
				b.WriteString("\n```\n\n")
			}
		}
		if a.Note != "" {
			b.WriteString("---\n\n")
			b.WriteString(a.Note)
			b.WriteString("\n")
		}
		return strings.TrimSpace(b.String())
	}
	if a.Plain != "" {
		return a.Plain
	}
	return a.Raw
}

// stripJSONFence unwraps ```json fenced blocks, which models emit even
// when told not to.
func stripJSONFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	if idx := strings.Index(body, "\n"); idx >= 0 {
		// Drop the info string ("json", "javascript", ...).
		body = body[idx+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
