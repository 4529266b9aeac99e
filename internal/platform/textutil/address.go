package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxAddressLength bounds free-form address input.
const MaxAddressLength = 256

var addressPolicy = bluemonday.StrictPolicy()

// CleanAddress strips markup and control characters from a free-form address, collapses runs of
// whitespace and truncates the result to MaxAddressLength runes.
func CleanAddress(raw string) string {
	stripped := html.UnescapeString(addressPolicy.Sanitize(raw))
	fields := strings.FieldsFunc(stripped, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r < 0x20 || r == 0x7f
	})
	cleaned := strings.Join(fields, " ")
	if utf8.RuneCountInString(cleaned) > MaxAddressLength {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:MaxAddressLength]))
	}
	return cleaned
}

// CleanAddresses applies CleanAddress to each entry and drops the ones left empty.
func CleanAddresses(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := CleanAddress(value); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// NormalizeStringMap trims keys and values, removing entries with empty keys.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
