package services

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	UnknownCategory = "Unknown"
	NoDescription   = "No description available"
)

//go:embed catalog/values.yaml
var valuesYAML []byte

// ValueDescriptor is the fixed metadata for one known value term.
// Primary is the Schwartz basic value, Secondary the Gouveia functional value.
type ValueDescriptor struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Primary     string `yaml:"primary"`
	Secondary   string `yaml:"secondary"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	values []ValueDescriptor
	lower  []string
}

// NewCatalog keeps the given order; it decides which fuzzy match wins.
func NewCatalog(values []ValueDescriptor) *Catalog {
	c := &Catalog{
		values: append([]ValueDescriptor(nil), values...),
		lower:  make([]string, len(values)),
	}
	for i, v := range values {
		c.lower[i] = strings.ToLower(strings.TrimSpace(v.Name))
	}
	return c
}

// ParseCatalog decodes a YAML document with a top-level `values` list.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Values []ValueDescriptor `yaml:"values"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse value catalog: %w", err)
	}
	if len(doc.Values) == 0 {
		return nil, fmt.Errorf("parse value catalog: no values")
	}
	return NewCatalog(doc.Values), nil
}

// DefaultCatalog returns the embedded catalog of known values.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(valuesYAML)
}

func (c *Catalog) Len() int { return len(c.values) }

// Lookup matches case-insensitively: an exact name match first, then the first
// catalog entry where either name contains the other. The substring stage is
// deliberately loose, so "Health" resolves to "Health; Physical Wellbeing".
func (c *Catalog) Lookup(name string) (ValueDescriptor, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return ValueDescriptor{}, false
	}
	for i, known := range c.lower {
		if known == needle {
			return c.values[i], true
		}
	}
	for i, known := range c.lower {
		if strings.Contains(known, needle) || strings.Contains(needle, known) {
			return c.values[i], true
		}
	}
	return ValueDescriptor{}, false
}

// Resolve is Lookup with placeholders for unmatched names; Name is always the
// caller's own spelling.
func (c *Catalog) Resolve(name string) ValueDescriptor {
	d, ok := c.Lookup(name)
	if !ok {
		return ValueDescriptor{Name: name, Description: NoDescription, Primary: UnknownCategory, Secondary: UnknownCategory}
	}
	d.Name = name
	return d
}

// PrimaryCategories resolves the primary classification of each name.
func (c *Catalog) PrimaryCategories(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = c.Resolve(n).Primary
	}
	return out
}
