package topic

import (
	"fmt"

	"github.com/ibs-source/iot-router/internal/message"
)

// Registry is the compiled, validated template catalog. It is read-only
// after construction and safe for concurrent use.
type Registry struct {
	templates []*Template
	byKind    map[Kind]*Template
}

// NewRegistry compiles templates and checks that they are disjoint.
// An empty list uses Catalog().
func NewRegistry(templates ...Template) (*Registry, error) {
	if len(templates) == 0 {
		templates = Catalog()
	}

	r := &Registry{
		templates: make([]*Template, 0, len(templates)),
		byKind:    make(map[Kind]*Template, len(templates)),
	}
	for _, t := range templates {
		if _, dup := r.byKind[t.Kind]; dup {
			return nil, fmt.Errorf("duplicate template kind %s", t.Kind)
		}
		c, err := compile(t)
		if err != nil {
			return nil, err
		}
		r.templates = append(r.templates, c)
		r.byKind[c.Kind] = c
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate builds a sample topic from every template and fails if any
// other template also matches it.
func (r *Registry) Validate() error {
	for _, t := range r.templates {
		sample, err := t.Build("product0", "device0", "identifier0")
		if err != nil {
			return fmt.Errorf("template %s: %w", t.Kind, err)
		}
		if !t.Matches(sample) {
			return fmt.Errorf("template %s does not match its own topic %s", t.Kind, sample)
		}
		for _, other := range r.templates {
			if other != t && other.Matches(sample) {
				return fmt.Errorf("%w: %s and %s both match %s", ErrOverlappingTemplates, t.Kind, other.Kind, sample)
			}
		}
	}
	return nil
}

// Templates returns the compiled templates in catalog order.
func (r *Registry) Templates() []*Template {
	out := make([]*Template, len(r.templates))
	copy(out, r.templates)
	return out
}

// Lookup returns the template for kind.
func (r *Registry) Lookup(kind Kind) (*Template, error) {
	t, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return t, nil
}

// Match returns the template matching topic, or nil when none does.
func (r *Registry) Match(topic string) *Template {
	for _, t := range r.templates {
		if t.Matches(topic) {
			return t
		}
	}
	return nil
}

// Build substitutes the placeholders of the template registered for kind.
func (r *Registry) Build(kind Kind, product, device, identifier string) (string, error) {
	t, err := r.Lookup(kind)
	if err != nil {
		return "", err
	}
	return t.Build(product, device, identifier)
}

// MethodFor returns the canonical method of tpl.
func MethodFor(tpl *Template) (message.Method, bool) {
	if tpl == nil {
		return "", false
	}
	return tpl.CanonicalMethod()
}
