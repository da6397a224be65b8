// Package responses splits a model reply into the parts that are spoken.
package responses

import (
	"regexp"
	"slices"
	"strings"
)

var (
	jsonBlockPattern = regexp.MustCompile("(?s)```json\\s*\\{.*?\\}\\s*```")
	textBlockPattern = regexp.MustCompile("(?s)```(?:text)?\\s*.*?```")
)

// ConfirmationKeywords mark a closing question as a request for confirmation.
var ConfirmationKeywords = []string{
	"Do you want", "Should I", "Would you like", "Shall I",
	"Can I", "May I", "Are you sure", "Confirm", "Please confirm", "Is that okay",
}

// Parsed is a reply split into the statement and an optional confirmation
// question.
type Parsed struct {
	NaturalOutput string
	Confirmation  string
}

func (p Parsed) HasConfirmation() bool { return p.Confirmation != "" }

// Parse removes fenced blocks from response and extracts the confirmation
// question, which is then dropped from the natural output.
func Parse(response string) Parsed {
	natural := NaturalOutput(response)
	confirmation := Confirmation(response)

	if confirmation != "" && strings.Contains(natural, confirmation) {
		lines := strings.Split(natural, "\n")
		lines = slices.DeleteFunc(lines, func(line string) bool {
			return strings.TrimSpace(line) == confirmation
		})
		natural = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	return Parsed{NaturalOutput: natural, Confirmation: confirmation}
}

// NaturalOutput strips JSON and text code blocks from response.
func NaturalOutput(response string) string {
	cleaned := jsonBlockPattern.ReplaceAllString(response, "")
	cleaned = textBlockPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// Confirmation returns the last line of response that is a question
// containing one of the confirmation keywords.
func Confirmation(response string) string {
	lines := strings.Split(strings.TrimSpace(response), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || !strings.HasSuffix(line, "?") {
			continue
		}
		lower := strings.ToLower(line)
		for _, keyword := range ConfirmationKeywords {
			if strings.Contains(lower, strings.ToLower(keyword)) {
				return line
			}
		}
	}
	return ""
}
