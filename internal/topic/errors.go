package topic

import "errors"

var (
	// ErrMissingSubstitution is returned by Build when a required placeholder has no value.
	ErrMissingSubstitution = errors.New("missing topic substitution")
	// ErrUnrecognizedTopic marks a concrete topic that no template matches.
	ErrUnrecognizedTopic = errors.New("unrecognized topic")
	// ErrOverlappingTemplates is returned when two templates match the same concrete topic.
	ErrOverlappingTemplates = errors.New("overlapping topic templates")
	// ErrUnknownKind is returned for a kind that is not in the catalog.
	ErrUnknownKind = errors.New("unknown topic kind")
)
