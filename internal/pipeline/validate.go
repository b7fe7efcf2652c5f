package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinComposedLength       = 2
	MinSingleComposedLength = 1
)

// Verdict is Valid, or Rejected with a Reason naming the failed rule.
type Verdict struct {
	Valid  bool
	Reason string
}

func valid() Verdict { return Verdict{Valid: true} }

func rejected(reason string) Verdict { return Verdict{Reason: reason} }

// Validate applies, in order: required primary field, minimum composed length, control characters.
func Validate(primaryField string, s Subject, composed string, minLen int) Verdict {
	if strings.TrimSpace(s.Primary) == "" {
		return rejected(primaryField + " empty")
	}

	trimmed := strings.TrimSpace(composed)
	if utf8.RuneCountInString(trimmed) < minLen {
		return rejected(fmt.Sprintf("text too short: '%s'", composed))
	}

	for _, text := range s.Scanned {
		if c, ok := controlChar(text); ok {
			return rejected(fmt.Sprintf("contains control character: 0x%02x", c))
		}
	}
	return valid()
}

func controlChar(s string) (byte, bool) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c <= 0x08, c == 0x0b, c == 0x0c, c == 0x0e, c == 0x0f:
			return c, true
		}
	}
	return 0, false
}
