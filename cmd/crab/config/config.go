// Package config is the task configuration given to "crab submit".
//
// A Configuration is a set of sections, each of them holding key/value pairs
// declared by a Schema. It is built once (by Load or by hand), validated, and
// then frozen.
package config

import (
	"errors"
	"fmt"
	"slices"

	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/pkg/spelling"
)

// ErrFrozen is returned when a validated Configuration is modified.
var ErrFrozen = errors.New("configuration is frozen after validation")

type section struct {
	name   string
	keys   []string
	values map[string]any
}

type Configuration struct {
	schema   Schema
	sections []*section
	frozen   bool
}

// New returns an empty Configuration for DefaultSchema.
func New() *Configuration {
	return NewWithSchema(DefaultSchema)
}

func NewWithSchema(schema Schema) *Configuration {
	return &Configuration{schema: schema}
}

func (c *Configuration) section(name string) (*section, bool) {
	for _, s := range c.sections {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// DeclareSection adds a section. Declaring a section twice is a no-op.
//
// It fails with ErrConfig when name is not in the schema.
func (c *Configuration) DeclareSection(name string) error {
	if c.frozen {
		return ErrFrozen
	}
	if _, ok := c.section(name); ok {
		return nil
	}
	if _, ok := c.schema.Section(name); !ok {
		return craberr.NewCUIError(
			fmt.Sprintf("unknown configuration section %q", name),
			craberr.WithHint(spelling.Hint(name, c.schema.SectionNames())),
			craberr.WithCause(fmt.Errorf("%w: section %s", craberr.ErrConfig, name)),
		)
	}
	c.sections = append(c.sections, &section{name: name, values: map[string]any{}})
	return nil
}

// SetValue sets a value to a key in a declared section.
//
// Keys are not checked here; Validate does it.
func (c *Configuration) SetValue(sectionName, key string, value any) error {
	if c.frozen {
		return ErrFrozen
	}
	s, ok := c.section(sectionName)
	if !ok {
		return fmt.Errorf("%w: section %s is not declared", craberr.ErrConfig, sectionName)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
	return nil
}

// Sections lists declared sections in declared order.
func (c *Configuration) Sections() []string {
	names := make([]string, 0, len(c.sections))
	for _, s := range c.sections {
		names = append(names, s.name)
	}
	return names
}

// Keys lists keys set in the section, in order of setting.
func (c *Configuration) Keys(sectionName string) []string {
	s, ok := c.section(sectionName)
	if !ok {
		return nil
	}
	return slices.Clone(s.keys)
}

func (c *Configuration) Frozen() bool {
	return c.frozen
}

// lookup returns the value set, or the default declared by the schema.
func (c *Configuration) lookup(sectionName, key string) (any, bool) {
	if s, ok := c.section(sectionName); ok {
		if v, ok := s.values[key]; ok {
			return v, true
		}
	}
	sec, ok := c.schema.Section(sectionName)
	if !ok {
		return nil, false
	}
	p, ok := sec.Param(key)
	if !ok || p.Default == nil {
		return nil, false
	}
	return p.Default, true
}

// Has tells the key is set explicitly.
func (c *Configuration) Has(sectionName, key string) bool {
	s, ok := c.section(sectionName)
	if !ok {
		return false
	}
	_, ok = s.values[key]
	return ok
}

// String returns a string value, or its default, or "".
func (c *Configuration) String(sectionName, key string) string {
	v, ok := c.lookup(sectionName, key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Strings returns a list of strings, or its default, or nil.
func (c *Configuration) Strings(sectionName, key string) []string {
	v, ok := c.lookup(sectionName, key)
	if !ok {
		return nil
	}
	ss, _ := asStrings(v)
	return ss
}

// Int returns an integer value, or its default, or 0.
func (c *Configuration) Int(sectionName, key string) int {
	v, ok := c.lookup(sectionName, key)
	if !ok {
		return 0
	}
	n, _ := asInt(v)
	return n
}

// Bool returns a boolean value, or its default, or false.
func (c *Configuration) Bool(sectionName, key string) bool {
	v, ok := c.lookup(sectionName, key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func asStrings(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		ret := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			ret = append(ret, s)
		}
		return ret, true
	default:
		return nil, false
	}
}

func asInt(v any) (int, bool) {
	switch vv := v.(type) {
	case int:
		return vv, true
	case int64:
		return int(vv), true
	case int32:
		return int(vv), true
	case uint:
		return int(vv), true
	case float64:
		if vv == float64(int(vv)) {
			return int(vv), true
		}
	}
	return 0, false
}

// normalize converts v into the canonical Go type for t.
func normalize(t Type, v any) (any, bool) {
	switch t {
	case TypeString:
		s, ok := v.(string)
		return s, ok
	case TypeStrings:
		return asStrings(v)
	case TypeInt:
		return asInt(v)
	case TypeBool:
		b, ok := v.(bool)
		return b, ok
	}
	return nil, false
}
