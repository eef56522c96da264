// Package layerstatus reads and writes the per-pane layer visibility strings
// stored on cells: "name","true|false",...,* where * terminates the list.
package layerstatus

import (
	"errors"
	"fmt"
	"strings"
)

// Terminator marks the end of a serialized list
const Terminator = "*"

// ErrMalformed is returned for strings that are not in the legacy format
var ErrMalformed = errors.New("malformed layer status")

// DefaultOrder is the display order of the map layers
var DefaultOrder = []string{
	"Brazil Legal Amazon",
	"Brazil Municipalities Public",
	"Brazil States Public",
	"Brazil Federal Conservation Unit Public",
	"Brazil State Conservation Unit Public",
	"LANDSAT/LE7_L1T",
	"LANDSAT/LC8_L1T",
	"SMA",
	"RGB",
	"NDFI T0 (MODIS)",
	"NDFI T1 (MODIS)",
	"NDFI analysis",
	"True color RGB141",
	"False color RGB421",
	"F color infrared RGB214",
	"Baseline",
	"Previous RGB",
	"Validated polygons",
}

// Default returns every layer of DefaultOrder switched off
func Default() Status {
	out := make(Status, len(DefaultOrder))
	for i, name := range DefaultOrder {
		out[i] = Layer{Name: name}
	}
	return out
}

// Layer is one entry of a status list
type Layer struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Status is an ordered list of layer toggles
type Status []Layer

// Parse decodes a serialized status string
func Parse(s string) (Status, error) {
	var out Status
	rest := s
	for rest != Terminator {
		name, tail, err := token(rest)
		if err != nil {
			return nil, err
		}
		flag, tail, err := token(tail)
		if err != nil {
			return nil, err
		}

		var enabled bool
		switch flag {
		case "true":
			enabled = true
		case "false":
		default:
			return nil, fmt.Errorf("%w: layer %q has flag %q", ErrMalformed, name, flag)
		}

		out = append(out, Layer{Name: name, Enabled: enabled})
		rest = tail
	}
	return out, nil
}

// token reads one `"value",` item from the front of s
func token(s string) (string, string, error) {
	if !strings.HasPrefix(s, `"`) {
		return "", "", fmt.Errorf("%w: expected quote at %q", ErrMalformed, truncate(s))
	}
	end := strings.Index(s, `",`)
	if end < 0 {
		return "", "", fmt.Errorf("%w: unterminated item at %q", ErrMalformed, truncate(s))
	}
	return s[1:end], s[end+2:], nil
}

func truncate(s string) string {
	if len(s) > 24 {
		return s[:24] + "..."
	}
	return s
}

// String encodes the list in the legacy format
func (st Status) String() string {
	var b strings.Builder
	for _, l := range st {
		b.WriteByte('"')
		b.WriteString(l.Name)
		b.WriteString(`","`)
		if l.Enabled {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		b.WriteString(`",`)
	}
	b.WriteString(Terminator)
	return b.String()
}

// Enabled reports whether the named layer is switched on
func (st Status) Enabled(name string) bool {
	for _, l := range st {
		if l.Name == name {
			return l.Enabled
		}
	}
	return false
}

// Set returns a copy with the named layer toggled, appending it if absent
func (st Status) Set(name string, enabled bool) Status {
	out := make(Status, len(st))
	copy(out, st)
	for i := range out {
		if out[i].Name == name {
			out[i].Enabled = enabled
			return out
		}
	}
	return append(out, Layer{Name: name, Enabled: enabled})
}

// Sorted returns a copy ordered by DefaultOrder; unknown layers keep their
// relative order after the known ones.
func (st Status) Sorted() Status {
	rank := make(map[string]int, len(DefaultOrder))
	for i, name := range DefaultOrder {
		rank[name] = i
	}

	out := make(Status, 0, len(st))
	for _, name := range DefaultOrder {
		for _, l := range st {
			if l.Name == name {
				out = append(out, l)
			}
		}
	}
	for _, l := range st {
		if _, ok := rank[l.Name]; !ok {
			out = append(out, l)
		}
	}
	return out
}
