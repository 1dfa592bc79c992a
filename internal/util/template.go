package util

import "strings"

const TextToken = "{textToken}"

// ApplyTextToken fills the sender supplied text into a template.
func ApplyTextToken(template, token string) string {
	return strings.TrimSpace(strings.ReplaceAll(template, TextToken, token+" "))
}

// RenderTemplate replaces $name$ placeholders.
func RenderTemplate(body string, vars map[string]string) string {
	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "$"+k+"$", v)
	}
	return out
}
