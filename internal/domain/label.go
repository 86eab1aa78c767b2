package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Label is an open-ended, case-sensitive class name.
type Label string

// Unknown is the abstain outcome. It is longer than MaxLabelLen so it can
// never collide with a user label.
const Unknown Label = "UNKNOWN"

const (
	MinLabelLen = 1
	MaxLabelLen = 5
)

// ParseLabel validates a label at the boundary. The input is trimmed and
// NFC-normalised before its codepoints are counted.
func ParseLabel(s string) (Label, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	n := utf8.RuneCountInString(s)
	if n < MinLabelLen || n > MaxLabelLen {
		return "", fmt.Errorf("%w: %q has %d codepoints, want %d-%d", ErrInvalidLabel, s, n, MinLabelLen, MaxLabelLen)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %q contains control characters", ErrInvalidLabel, s)
		}
	}
	return Label(s), nil
}

func (l Label) String() string {
	return string(l)
}
