package services

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MinAge = 18
	MaxAge = 120
)

// valueSeparators are tried in priority order; the first one present wins.
var valueSeparators = []string{",", ".", ";", "\n"}

// ParseValueList splits free text into value names. Order is preserved so the
// index doubles as the rank.
func ParseValueList(text string) []string {
	text = strings.TrimSpace(text)
	for _, sep := range valueSeparators {
		if !strings.Contains(text, sep) {
			continue
		}
		var values []string
		for _, part := range strings.Split(text, sep) {
			if v := strings.TrimSpace(part); v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			return values
		}
	}
	if values := strings.Fields(text); len(values) > 0 {
		return values
	}
	if text != "" {
		return []string{text}
	}
	return nil
}

// ValidateAge strips every non-digit before parsing, so "1,20!" reads as 120.
func ValidateAge(text string) (int, error) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return 0, NewInvalidError("Please enter a numeric age.")
	}
	age, err := strconv.Atoi(digits)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, NewInvalidError("Please enter a valid age between 18 and 120.")
		}
		return 0, NewInvalidError("Please enter a numeric age.")
	}
	if age < MinAge || age > MaxAge {
		return 0, NewInvalidError("Please enter a valid age between 18 and 120.")
	}
	return age, nil
}

// ValidateCountry requires at least one letter and title-cases the input.
func ValidateCountry(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewInvalidError("Please enter a valid country name.")
	}
	if strings.IndexFunc(text, unicode.IsLetter) < 0 {
		return "", NewInvalidError("Please enter a valid country name with alphabetic characters.")
	}
	return cases.Title(language.Und).String(text), nil
}

// ValidateOccupation upper-cases the first character and lower-cases the rest.
func ValidateOccupation(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewInvalidError("Please enter your occupation.")
	}
	return capitalize(text), nil
}

func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToTitle(first)) + cases.Lower(language.Und).String(s[size:])
}
