package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// locationReplacer maps a free-text location onto a single path segment.
// Spaces become underscores and separators become dashes; characters that are
// unsafe on common filesystems are dropped.
var locationReplacer = strings.NewReplacer(
	" ", "_",
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeLocation converts a location into a directory-name token.
// Returns "location" when nothing usable remains.
func SanitizeLocation(location string) string {
	location = strings.Join(strings.Fields(location), " ")
	out := strings.Trim(locationReplacer.Replace(location), "._")
	if out == "" {
		return "location"
	}
	return out
}

// TitleLocation renders a location for headings: "times square" becomes
// "Times Square". Already-mixed-case input is left untouched.
func TitleLocation(location string) string {
	location = strings.Join(strings.Fields(location), " ")
	if location == "" {
		return ""
	}
	if location != strings.ToLower(location) {
		return location
	}
	return cases.Title(language.English).String(location)
}
