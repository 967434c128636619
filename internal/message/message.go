// Package message provides the device message model shared by the transport, the bus and the stores.
package message

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Payload is the canonical alias for raw message body
type Payload = []byte

// Method is the logical operation a device message carries.
type Method string

// Standard methods. The first group is bound to topic families by the registry.
const (
	MethodPropertyPost  Method = "thing.property.post"
	MethodPropertySet   Method = "thing.property.set"
	MethodEventPost     Method = "thing.event.post"
	MethodLogPost       Method = "thing.log.post"
	MethodServiceInvoke Method = "thing.service.invoke"
	MethodConfigPush    Method = "thing.config.push"
	MethodOtaUpgrade    Method = "thing.ota.upgrade"
	MethodOtaProgress   Method = "thing.ota.progress"
)

// BusTopic is the topic forwarded device messages are published under.
const BusTopic = "iot_device_message"

// DeviceMessage is a single message exchanged with a device.
// It is passed by value; only Method may change after creation.
type DeviceMessage struct {
	ID         string          `json:"id"`
	ReportTime int64           `json:"reportTime,omitempty"` // unix millis
	DeviceID   int64           `json:"deviceId,omitempty"`
	TenantID   int64           `json:"tenantId,omitempty"`
	ServerID   string          `json:"serverId,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	Method     Method          `json:"method,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Code       *int            `json:"code,omitempty"`
	Msg        string          `json:"msg,omitempty"`
	Topic      string          `json:"topic,omitempty"`
	NeedReply  bool            `json:"needReply,omitempty"`
}

// ReportedAt returns the device report time, or fallback when none was sent.
func (m DeviceMessage) ReportedAt(fallback time.Time) time.Time {
	if m.ReportTime <= 0 {
		return fallback
	}
	return time.UnixMilli(m.ReportTime)
}

// Decode parses a device payload. A missing id is generated.
func Decode(payload Payload) (DeviceMessage, error) {
	var msg DeviceMessage
	if len(payload) == 0 {
		return msg, fmt.Errorf("empty device payload")
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode device payload: %w", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return msg, nil
}

// Encode serializes a message for the wire.
func Encode(msg DeviceMessage) (Payload, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode device message %s: %w", msg.ID, err)
	}
	return b, nil
}

// Request builds an outbound request. An empty requestID is generated.
func Request(requestID string, method Method, params any) (DeviceMessage, error) {
	raw, err := rawJSON(params)
	if err != nil {
		return DeviceMessage{}, err
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return DeviceMessage{
		ID:         uuid.NewString(),
		ReportTime: time.Now().UnixMilli(),
		RequestID:  requestID,
		Method:     method,
		Params:     raw,
	}, nil
}

// OtaUpgradeParams describes a firmware package pushed to a device.
type OtaUpgradeParams struct {
	Version     string `json:"version"`
	FileURL     string `json:"fileUrl"`
	FileSize    int64  `json:"fileSize"`
	DigestAlg   string `json:"fileDigestAlgorithm"`
	DigestValue string `json:"fileDigestValue"`
}

// OtaUpgrade builds an upgrade task for a device.
func OtaUpgrade(p OtaUpgradeParams) (DeviceMessage, error) {
	return Request("", MethodOtaUpgrade, p)
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message body: %w", err)
	}
	return b, nil
}
