// Package command fans command batches out to devices.
package command

import (
	"github.com/goccy/go-json"
	"github.com/ibs-source/iot-router/internal/directory"
)

// Broadcast targets every device of the entry's product.
const Broadcast = "ALL"

// Groups of a batch.
const (
	GroupSerial   = "serial"
	GroupParallel = "parallel"
)

// Status is the result of one command for one device.
type Status string

// Outcome statuses.
const (
	StatusSent           Status = "sent"
	StatusDeviceNotFound Status = "device_not_found"
	StatusBuildFailed    Status = "build_failed"
	StatusSendFailed     Status = "send_failed"
)

// Batch is a command request. Serial entries run in order before the
// parallel ones, which run concurrently.
type Batch struct {
	Serial   []Entry `json:"serial,omitempty"`
	Parallel []Entry `json:"parallel,omitempty"`
}

// Len returns the number of entries in both groups.
func (b Batch) Len() int {
	return len(b.Serial) + len(b.Parallel)
}

// Entry is one command aimed at a device, or at a whole product through Broadcast.
type Entry struct {
	ProductIdentification string          `json:"productIdentification"`
	DeviceIdentification  string          `json:"deviceIdentification"`
	MsgType               string          `json:"msgType"`
	MsgID                 string          `json:"msgId,omitempty"`
	ServiceCode           string          `json:"serviceCode"`
	CommandName           string          `json:"commandName"`
	CommandCode           string          `json:"commandCode"`
	Params                map[string]any  `json:"params"`
	ExtendInfo            json.RawMessage `json:"extendInfo,omitempty"`
}

// Identifier is the service identifier of the downstream invoke topic.
func (e Entry) Identifier() string {
	if e.ServiceCode != "" {
		return e.ServiceCode
	}
	return e.CommandCode
}

// Resolved is an entry bound to one concrete device.
type Resolved struct {
	Group      string
	EntryIndex int
	Entry      Entry
	Device     directory.Device
	Encryption directory.EncryptionParams
	Topic      string
}

// Outcome reports what happened to one resolved device, or to an entry
// whose target could not be resolved.
type Outcome struct {
	Group                string `json:"group"`
	EntryIndex           int    `json:"entryIndex"`
	DeviceIdentification string `json:"deviceIdentification"`
	DeviceID             int64  `json:"deviceId,omitempty"`
	MessageID            string `json:"messageId,omitempty"`
	Status               Status `json:"status"`
	Error                string `json:"error,omitempty"`
}
