package orchestrator

import "regexp"

var annotation = regexp.MustCompile(`\[\[.*?\]\]`)

// CleanText removes [[...]] authoring annotations.
func CleanText(s string) string {
	return annotation.ReplaceAllString(s, "")
}

// DefaultWelcomeText is shown when the START scene has no text.
const DefaultWelcomeText = "Welcome adventurer..."

func welcomeText(s string) string {
	if s == "" {
		s = DefaultWelcomeText
	}
	return CleanText(s)
}
