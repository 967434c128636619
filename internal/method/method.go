// Package method reconciles a message's method with the method its topic implies.
package method

import (
	"errors"
	"fmt"

	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/topic"
)

// ErrMethodMismatch reports a producer method that disagreed with its topic.
// It is logged, never returned to callers.
var ErrMethodMismatch = errors.New("method does not match topic")

// Result describes what Normalize did.
type Result int

const (
	Unchanged Result = iota
	Filled
	Corrected
)

func (r Result) String() string {
	switch r {
	case Filled:
		return "filled"
	case Corrected:
		return "corrected"
	default:
		return "unchanged"
	}
}

// Normalizer applies the registry method to messages.
type Normalizer struct {
	log *log.Logger
}

// New returns a Normalizer logging mismatches to logger.
func New(logger *log.Logger) *Normalizer {
	return &Normalizer{log: logger}
}

// Normalize sets msg.Method to the template's canonical method. Templates
// without one leave the message untouched.
func (n *Normalizer) Normalize(msg *message.DeviceMessage, tpl *topic.Template) Result {
	canonical, ok := topic.MethodFor(tpl)
	if !ok {
		return Unchanged
	}

	switch msg.Method {
	case canonical:
		return Unchanged
	case "":
		msg.Method = canonical
		return Filled
	}

	if n.log != nil {
		err := fmt.Errorf("%w: got %q, want %q", ErrMethodMismatch, msg.Method, canonical)
		n.log.WarnWithFields(log.MessageFields(msg.ID, msg.Topic), "Correcting method: %v", err)
	}
	msg.Method = canonical
	return Corrected
}

// NormalizeDownstream normalizes only messages bound for a downstream template.
func (n *Normalizer) NormalizeDownstream(msg *message.DeviceMessage, tpl *topic.Template) Result {
	if tpl == nil || tpl.Direction != topic.Downstream {
		return Unchanged
	}
	return n.Normalize(msg, tpl)
}
