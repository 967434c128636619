// Package topic holds the catalog of device topic templates and matches concrete topics against it.
package topic

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ibs-source/iot-router/internal/message"
)

// Placeholders recognised in template patterns.
const (
	PlaceholderProduct    = "{product}"
	PlaceholderDevice     = "{device}"
	PlaceholderIdentifier = "{identifier}"
)

// Direction tells whether a topic carries device-to-cloud or cloud-to-device traffic.
type Direction int

const (
	Upstream Direction = iota
	Downstream
)

func (d Direction) String() string {
	if d == Downstream {
		return "downstream"
	}
	return "upstream"
}

// Kind is the stable name of a template.
type Kind string

// Template is an immutable topic pattern.
type Template struct {
	Kind        Kind
	Pattern     string
	Direction   Direction
	Method      message.Method
	Description string

	re            *regexp.Regexp
	productIdx    int
	deviceIdx     int
	identifierIdx int
}

// Segments are the placeholder values of a concrete topic.
type Segments struct {
	Product    string
	Device     string
	Identifier string
}

func compile(t Template) (*Template, error) {
	parts := strings.Split(t.Pattern, "/")
	t.productIdx, t.deviceIdx, t.identifierIdx = -1, -1, -1

	var expr strings.Builder
	expr.WriteByte('^')
	for i, p := range parts {
		if i > 0 {
			expr.WriteByte('/')
		}
		switch p {
		case PlaceholderProduct:
			t.productIdx = i
		case PlaceholderDevice:
			t.deviceIdx = i
		case PlaceholderIdentifier:
			t.identifierIdx = i
		default:
			if strings.ContainsAny(p, "{}") {
				return nil, fmt.Errorf("template %s: unsupported placeholder %q", t.Kind, p)
			}
			expr.WriteString(regexp.QuoteMeta(p))
			continue
		}
		expr.WriteString(`[^/]+`)
	}
	expr.WriteByte('$')

	if t.productIdx < 0 || t.deviceIdx < 0 {
		return nil, fmt.Errorf("template %s: product and device placeholders are required", t.Kind)
	}

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", t.Kind, err)
	}
	t.re = re
	return &t, nil
}

// HasIdentifier reports whether the pattern carries an {identifier} segment.
func (t *Template) HasIdentifier() bool {
	return t.identifierIdx >= 0
}

// CanonicalMethod returns the method bound to the template, if any.
// Shadow, tag, NTP and broadcast families have none.
func (t *Template) CanonicalMethod() (message.Method, bool) {
	return t.Method, t.Method != ""
}

// Matches reports whether topic is an instance of the template.
func (t *Template) Matches(topic string) bool {
	return t.re.MatchString(topic)
}

// Build substitutes the placeholders. identifier is ignored when the
// template has no identifier segment.
func (t *Template) Build(product, device, identifier string) (string, error) {
	if product == "" {
		return "", fmt.Errorf("%w: product for %s", ErrMissingSubstitution, t.Kind)
	}
	if device == "" {
		return "", fmt.Errorf("%w: device for %s", ErrMissingSubstitution, t.Kind)
	}
	if t.HasIdentifier() && identifier == "" {
		return "", fmt.Errorf("%w: identifier for %s", ErrMissingSubstitution, t.Kind)
	}
	for _, v := range []string{product, device, identifier} {
		if strings.Contains(v, "/") {
			return "", fmt.Errorf("topic segment %q contains '/'", v)
		}
	}

	r := strings.NewReplacer(
		PlaceholderProduct, product,
		PlaceholderDevice, device,
		PlaceholderIdentifier, identifier,
	)
	return r.Replace(t.Pattern), nil
}

// Extract returns the placeholder values of topic, or false when topic
// does not match the template.
func (t *Template) Extract(topic string) (Segments, bool) {
	if !t.Matches(topic) {
		return Segments{}, false
	}
	parts := strings.Split(topic, "/")
	s := Segments{
		Product: parts[t.productIdx],
		Device:  parts[t.deviceIdx],
	}
	if t.identifierIdx >= 0 {
		s.Identifier = parts[t.identifierIdx]
	}
	return s, true
}
