package fetcher

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// FlexInt decodes a JSON number, a numeric string or null. Judges are not
// consistent about which one they send.
type FlexInt struct {
	V     int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	*f = FlexInt{}
	s := string(bytes.TrimSpace(b))
	if s == "null" || s == `""` {
		return nil
	}
	if uq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(uq)
	}
	if n, err := strconv.Atoi(s); err == nil {
		f.V, f.Valid = n, true
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		f.V, f.Valid = int(math.Round(x)), true
	}
	// Non-numeric text stays invalid rather than failing the whole payload.
	return nil
}

// Ptr returns nil for invalid values.
func (f FlexInt) Ptr() *int {
	if !f.Valid {
		return nil
	}
	v := f.V
	return &v
}

// FlexString decodes strings and numbers alike as text.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if uq, err := strconv.Unquote(s); err == nil {
		*f = FlexString(uq)
		return nil
	}
	*f = FlexString(s)
	return nil
}

func (f FlexString) String() string { return string(f) }
