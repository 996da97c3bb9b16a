package util

import "strings"

// Slugify lowercases the input and collapses runs of non-alphanumeric
// characters into single dashes. It never returns an empty string for
// non-empty meaningful input; a title with no usable characters yields
// "untitled".
func Slugify(title string) string {
	out := make([]rune, 0, len(title))
	lastDash := true
	for _, ch := range strings.ToLower(strings.TrimSpace(title)) {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			out = append(out, ch)
			lastDash = false
			continue
		}
		if !lastDash {
			out = append(out, '-')
			lastDash = true
		}
	}
	slug := strings.Trim(string(out), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
