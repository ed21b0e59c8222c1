package sanitize

import "strings"

// Declaration is one property: value pair from an inline style attribute
type Declaration struct {
	Property string
	Value    string
}

// Style is an ordered list of inline declarations
type Style []Declaration

// ParseStyle splits an inline style attribute. Property names are lowercased;
// values are kept as written.
func ParseStyle(attr string) Style {
	var style Style
	for _, part := range strings.Split(attr, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		value = strings.TrimSpace(value)
		if prop == "" {
			continue
		}
		style = append(style, Declaration{Property: prop, Value: value})
	}
	return style
}

// Get returns the last value set for a property
func (s Style) Get(prop string) (string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Property == prop {
			return s[i].Value, true
		}
	}
	return "", false
}

// Set gives prop a single declaration. An existing property keeps its
// position; a new one is appended.
func (s Style) Set(prop, value string) Style {
	out := s[:0:0]
	found := false
	for _, d := range s {
		if d.Property != prop {
			out = append(out, d)
			continue
		}
		if !found {
			out = append(out, Declaration{Property: prop, Value: value})
			found = true
		}
	}
	if !found {
		out = append(out, Declaration{Property: prop, Value: value})
	}
	return out
}

// SetDefault adds a declaration only when the property is absent
func (s Style) SetDefault(prop, value string) Style {
	if _, ok := s.Get(prop); ok {
		return s
	}
	return append(s, Declaration{Property: prop, Value: value})
}

// Remove drops every declaration of the given properties
func (s Style) Remove(props ...string) Style {
	out := s[:0:0]
	for _, d := range s {
		drop := false
		for _, p := range props {
			if d.Property == p {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, d)
		}
	}
	return out
}

// String renders the declarations back into attribute form
func (s Style) String() string {
	parts := make([]string, 0, len(s))
	for _, d := range s {
		parts = append(parts, d.Property+": "+d.Value)
	}
	return strings.Join(parts, "; ")
}
