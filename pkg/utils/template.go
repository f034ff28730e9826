// Package utils gateway helper functions
// URL template rendering, great-circle distance and small string helpers
package utils

import (
	"net/url"
	"regexp"
	"strings"
)

// placeholderPattern matches {name} placeholders in configured URL templates
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// TemplatePlaceholders returns the placeholder names of a template in order of appearance
func TemplatePlaceholders(tpl string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(tpl, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// RenderURLTemplate substitutes {name} placeholders with query-escaped values
// Every placeholder without a non-blank value is reported in missing, in order;
// when missing is non-empty the rendered URL must not be used.
func RenderURLTemplate(tpl string, values map[string]string) (string, []string) {
	rendered := tpl
	var missing []string

	for _, name := range TemplatePlaceholders(tpl) {
		value := strings.TrimSpace(values[name])
		if value == "" {
			missing = append(missing, name)
			continue
		}
		rendered = strings.ReplaceAll(rendered, "{"+name+"}", url.QueryEscape(value))
	}

	return rendered, missing
}
