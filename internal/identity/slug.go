package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)
	slugStrip      = regexp.MustCompile(`[^a-z0-9]`)
)

// Slugify derives the identifier under which a person's raw samples are
// grouped: lowercased first and last name joined by dashes, with the email
// local part appended. Falls back to a random identifier when every input is
// empty so sample storage always has a usable directory name.
func Slugify(firstName, lastName, email string) string {
	parts := make([]string, 0, 2)
	for _, part := range []string{firstName, lastName} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	base := strings.Trim(slugSeparators.ReplaceAllString(strings.ToLower(strings.Join(parts, "-")), "-"), "-")

	var suffix string
	if email != "" {
		local, _, _ := strings.Cut(email, "@")
		suffix = slugStrip.ReplaceAllString(strings.ToLower(local), "")
	}

	switch {
	case base != "" && suffix != "":
		return base + "-" + suffix
	case base != "":
		return base
	case suffix != "":
		return suffix
	}
	return "user-" + uuid.NewString()[:8]
}
