package entity

import (
	"database/sql"
	"strings"
	"time"
)

// composer joins non-empty parts with single spaces, in insertion order.
type composer struct {
	parts []string
}

func (c *composer) add(s string) *composer {
	if s = strings.TrimSpace(s); s != "" {
		c.parts = append(c.parts, s)
	}
	return c
}

func (c *composer) addNull(s sql.NullString) *composer {
	if s.Valid {
		c.add(s.String)
	}
	return c
}

// labeled adds "label: value" when value is non-empty.
func (c *composer) labeled(label string, s sql.NullString) *composer {
	if s.Valid && strings.TrimSpace(s.String) != "" {
		c.parts = append(c.parts, label+": "+strings.TrimSpace(s.String))
	}
	return c
}

func (c *composer) String() string {
	return strings.Join(c.parts, " ")
}

func str(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}

func date(t sql.NullTime) any {
	if t.Valid {
		return t.Time.UTC().Format(time.RFC3339)
	}
	return nil
}
