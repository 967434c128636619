package redis

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Extension sub-keys.
const (
	ExtensionProperties      = "properties"
	ExtensionDesired         = "desired"
	ExtensionEvents          = "events"
	ExtensionServiceResponse = "serviceResponse"
	ExtensionOtaQuery        = "otaQuery"
)

// Extension is the document stored in the shadow's extension field.
// Sub-keys it does not name are kept as-is so other writers are not clobbered.
type Extension struct {
	Properties      json.RawMessage
	Desired         json.RawMessage
	Events          json.RawMessage
	ServiceResponse json.RawMessage
	OtaQuery        json.RawMessage

	other map[string]json.RawMessage
}

func (e *Extension) slot(key string) *json.RawMessage {
	switch key {
	case ExtensionProperties:
		return &e.Properties
	case ExtensionDesired:
		return &e.Desired
	case ExtensionEvents:
		return &e.Events
	case ExtensionServiceResponse:
		return &e.ServiceResponse
	case ExtensionOtaQuery:
		return &e.OtaQuery
	}
	return nil
}

// Set replaces one sub-document. An empty value removes it.
func (e *Extension) Set(key string, value json.RawMessage) {
	if p := e.slot(key); p != nil {
		*p = value
		return
	}
	if len(value) == 0 {
		delete(e.other, key)
		return
	}
	if e.other == nil {
		e.other = make(map[string]json.RawMessage)
	}
	e.other[key] = value
}

// MarshalJSON writes named and preserved sub-documents as one object.
func (e Extension) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(e.other)+5)
	for k, v := range e.other {
		doc[k] = v
	}
	for _, k := range []string{
		ExtensionProperties, ExtensionDesired, ExtensionEvents, ExtensionServiceResponse, ExtensionOtaQuery,
	} {
		if v := *e.slot(k); len(v) > 0 {
			doc[k] = v
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads an extension object. Anything but an object is an error.
func (e *Extension) UnmarshalJSON(b []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("malformed extension: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("malformed extension: not an object")
	}
	*e = Extension{}
	for k, v := range doc {
		e.Set(k, v)
	}
	return nil
}
