// Package normalize provides pure canonicalization functions for incoming records
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", strings.ToLower)
	Register("uppercase", strings.ToUpper)
	Register("trim", strings.TrimSpace)
	Register("digits_only", DigitsOnly)
	Register("nname", Name)
	Register("collapse_whitespace", CollapseWhitespace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// MinPhoneDigits is the shortest digit string accepted as a phone number
const MinPhoneDigits = 7

// Record normalizes a raw candidate record. Fields that normalize to nothing
// come back nil; the record itself is never rejected here.
func Record(rec models.CandidateRecord) models.NormalizedRecord {
	kind := rec.Kind
	if kind == "" {
		kind = models.EntityKindPerson
	}
	return models.NormalizedRecord{
		FirstName:    firstName(rec.FirstName),
		DisplayName:  DisplayName(rec.FirstName, rec.LastName),
		Email:        Email(rec.Email),
		Phone:        Phone(rec.Phone),
		Address:      Address(rec.Address),
		Kind:         kind,
		SourceSystem: rec.SourceSystem,
		SourceBatch:  rec.SourceBatch,
	}
}

// Email lowercases and trims an email address. Returns nil for empty input or
// anything without an @.
func Email(s string) *string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || !strings.Contains(s, "@") {
		return nil
	}
	return &s
}

// Phone reduces a phone number to bare digits. An 11-digit number with a
// leading 1 drops the country code. Anything under MinPhoneDigits digits is
// discarded as unusable.
func Phone(s string) *string {
	digits := DigitsOnly(s)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) < MinPhoneDigits {
		return nil
	}
	return &digits
}

// AreaCode returns the area code of a normalized 10-digit phone number
func AreaCode(phone string) string {
	if len(phone) != 10 {
		return ""
	}
	return phone[:3]
}

// Address uppercases an address and collapses internal whitespace. Returns nil
// for empty input.
func Address(s string) *string {
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToUpper(s), " "))
	if s == "" {
		return nil
	}
	return &s
}

// DisplayName joins trimmed first and last names with a single space. Returns
// nil when both parts are empty.
func DisplayName(first, last string) *string {
	first = strings.TrimSpace(whitespaceRe.ReplaceAllString(first, " "))
	last = strings.TrimSpace(whitespaceRe.ReplaceAllString(last, " "))
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return nil
	}
	return &name
}

func firstName(s string) *string {
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	if s == "" {
		return nil
	}
	return &s
}

// Name normalizes a display name for comparison: lowercase, punctuation and
// common suffixes removed, whitespace collapsed.
func Name(s string) string {
	s = strings.ToLower(s)

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md", " dvm"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) && !prevSpace {
			result.WriteRune(' ')
			prevSpace = true
		}
	}

	return strings.TrimSpace(result.String())
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// CollapseWhitespace reduces internal runs of whitespace to single spaces
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
