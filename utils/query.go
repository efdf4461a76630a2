package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is the parsed page/limit pair of a list request.
type Page struct {
	Page  int
	Limit int
}

func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TotalPages returns ceil(total/limit).
func (p Page) TotalPages(total int64) int {
	if p.Limit <= 0 {
		return 0
	}
	return int((total + int64(p.Limit) - 1) / int64(p.Limit))
}

// Window slices n items to the current page and returns [start,end).
func (p Page) Window(n int) (int, int) {
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}

func ParsePage(page, limit string) Page {
	p := Page{Page: ParseIntDefault(page, DefaultPage), Limit: ParseIntDefault(limit, DefaultLimit)}
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// ParseSort turns "field:dir" into an ORDER BY clause, accepting only fields in allowed
// (json name -> column). Unknown fields fall back to def.
func ParseSort(raw string, allowed map[string]string, def string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	field, dir, _ := strings.Cut(raw, ":")
	column, ok := allowed[field]
	if !ok {
		return def
	}
	if strings.EqualFold(dir, "asc") {
		return column + " ASC"
	}
	return column + " DESC"
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseFloatPtr returns nil for empty or invalid input.
func ParseFloatPtr(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseBoolPtr returns nil for empty or invalid input.
func ParseBoolPtr(s string) *bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &v
}

// LikePattern wraps s for a case-insensitive LIKE and escapes wildcards.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(strings.TrimSpace(s))) + "%"
}
