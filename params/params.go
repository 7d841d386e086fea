// Package params renders parameterized query templates.
//
// A template is plain text containing placeholder tokens. Each [Param] names
// a token and how the caller's value is turned into replacement text: either
// verbatim, or looked up in the param's value map. Substitution is literal
// and happens once per param, in declared order.
package params

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Param describes one template parameter.
type Param struct {
	// Name is the key callers use to supply the value.
	Name string `json:"name" yaml:"name"`
	// Replaces is the placeholder token substituted in the template.
	Replaces string `json:"replaces" yaml:"replaces"`
	// Template optionally restricts the accepted values; the supplied value is
	// used as a key and the mapped text is substituted instead.
	Template map[string]string `json:"template,omitempty" yaml:"template,omitempty"`
	// Default is used when the caller supplies no value. A nil Default makes
	// the param required.
	Default *string `json:"default,omitempty" yaml:"default,omitempty"`
}

// Required reports whether the param has no default.
func (p Param) Required() bool {
	return p.Default == nil
}

// Schema is the ordered list of params for one template.
type Schema struct {
	Params []Param `json:"params" yaml:"params"`
}

// Validate checks that names and tokens are unique and that no token contains
// another, which would let a later substitution re-match earlier text.
func (s Schema) Validate() error {
	names := make(map[string]struct{}, len(s.Params))
	for i, p := range s.Params {
		if p.Name == "" {
			return errors.Wrapf(ErrInvalidSchema, "param #%d has no name", i)
		}
		if p.Replaces == "" {
			return errors.Wrapf(ErrInvalidSchema, "param %s has no placeholder token", p.Name)
		}
		if _, ok := names[p.Name]; ok {
			return errors.Wrapf(ErrInvalidSchema, "param %s declared twice", p.Name)
		}
		names[p.Name] = struct{}{}
		for _, other := range s.Params[i+1:] {
			if strings.Contains(p.Replaces, other.Replaces) || strings.Contains(other.Replaces, p.Replaces) {
				return errors.Wrapf(ErrInvalidSchema, "placeholder tokens of %s and %s overlap", p.Name, other.Name)
			}
		}
	}
	return nil
}

// value returns the raw value for p: the supplied one or its default.
func (p Param) value(values map[string]string) (string, error) {
	if v, ok := values[p.Name]; ok {
		return v, nil
	}
	if p.Default != nil {
		return *p.Default, nil
	}
	return "", &MissingParameterError{Name: p.Name}
}

// text returns the replacement text for raw value v.
func (p Param) text(v string) (string, error) {
	if p.Template == nil {
		return v, nil
	}
	target, ok := p.Template[v]
	if !ok {
		return "", &InvalidParameterValueError{Name: p.Name, Value: v}
	}
	return target, nil
}

// Resolve returns the raw value of every param in declared order, applying
// defaults. Values are checked against the value maps so that a key built from
// them always corresponds to a renderable request.
func (s Schema) Resolve(values map[string]string) ([]string, error) {
	out := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		v, err := p.value(values)
		if err != nil {
			return nil, err
		}
		if _, err := p.text(v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Render substitutes every param of schema into template.
func Render(template string, schema Schema, values map[string]string) (string, error) {
	for _, p := range schema.Params {
		v, err := p.value(values)
		if err != nil {
			return "", err
		}
		target, err := p.text(v)
		if err != nil {
			return "", err
		}
		template = strings.ReplaceAll(template, p.Replaces, target)
	}
	return template, nil
}
