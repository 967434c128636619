// Package downstream sends cloud to device messages and manages device connections.
package downstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/method"
	"github.com/ibs-source/iot-router/internal/topic"
)

// ErrDownstreamSend marks a message that could not be handed to the broker.
var ErrDownstreamSend = errors.New("downstream send failed")

// Publisher publishes a payload on a concrete topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ConnectionCloser kicks devices off the broker.
type ConnectionCloser interface {
	CloseConnection(ctx context.Context, clientIDs []string) (int, error)
}

// Sender is the downstream send API.
type Sender struct {
	pub        Publisher
	registry   *topic.Registry
	normalizer *method.Normalizer
	dir        directory.Directory
	closer     ConnectionCloser
	log        *log.Logger
}

// NewSender creates a sender. closer may be nil when the broker API is not configured.
func NewSender(
	pub Publisher,
	registry *topic.Registry,
	normalizer *method.Normalizer,
	dir directory.Directory,
	closer ConnectionCloser,
	logger *log.Logger,
) *Sender {
	return &Sender{
		pub:        pub,
		registry:   registry,
		normalizer: normalizer,
		dir:        dir,
		closer:     closer,
		log:        logger,
	}
}

// SendDownstreamMessage normalizes the method against the topic, encodes the
// message and publishes it on msg.Topic.
func (s *Sender) SendDownstreamMessage(ctx context.Context, msg message.DeviceMessage) error {
	if msg.Topic == "" {
		return fmt.Errorf("%w: message %s has no topic", ErrDownstreamSend, msg.ID)
	}
	if msg.DeviceID == 0 {
		return fmt.Errorf("%w: message %s has no device id", ErrDownstreamSend, msg.ID)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	tpl := s.registry.Match(msg.Topic)
	if tpl == nil {
		s.log.WarnWithFields(log.MessageFields(msg.ID, msg.Topic), "Sending on a topic outside the catalog")
	} else {
		s.normalizer.NormalizeDownstream(&msg, tpl)
	}

	payload, err := message.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownstreamSend, err)
	}
	if err := s.pub.Publish(ctx, msg.Topic, payload); err != nil {
		return fmt.Errorf("%w: device %d: %w", ErrDownstreamSend, msg.DeviceID, err)
	}

	s.log.DebugWithFields(log.MessageFields(msg.ID, msg.Topic), "Sent downstream message to device %d", msg.DeviceID)
	return nil
}

// SendDownstreamMessageByDeviceID checks the device exists, then sends msg to it.
func (s *Sender) SendDownstreamMessageByDeviceID(ctx context.Context, deviceID int64, msg message.DeviceMessage) error {
	dev, err := s.dir.FindDeviceByID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownstreamSend, err)
	}
	msg.DeviceID = dev.ID
	if msg.TenantID == 0 {
		msg.TenantID = dev.TenantID
	}
	return s.SendDownstreamMessage(ctx, msg)
}

// SendCustomMessage sends a raw JSON payload as params on a catalog topic.
// The target device is taken from the topic.
func (s *Sender) SendCustomMessage(ctx context.Context, topicName string, payload []byte) (message.DeviceMessage, error) {
	tpl := s.registry.Match(topicName)
	if tpl == nil {
		return message.DeviceMessage{}, fmt.Errorf("%w: %s", topic.ErrUnrecognizedTopic, topicName)
	}
	seg, _ := tpl.Extract(topicName)
	dev, err := s.dir.FindDeviceByIdentification(ctx, seg.Device)
	if err != nil {
		return message.DeviceMessage{}, err
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return message.DeviceMessage{}, fmt.Errorf("%w: payload is not JSON", ErrDownstreamSend)
	}

	msg := message.DeviceMessage{
		ID:       uuid.NewString(),
		DeviceID: dev.ID,
		TenantID: dev.TenantID,
		Topic:    topicName,
		Params:   json.RawMessage(payload),
	}
	return msg, s.SendDownstreamMessage(ctx, msg)
}

// SendOtaUpgrade pushes a firmware upgrade task to a device.
func (s *Sender) SendOtaUpgrade(ctx context.Context, deviceID int64, p message.OtaUpgradeParams) (message.DeviceMessage, error) {
	dev, err := s.dir.FindDeviceByID(ctx, deviceID)
	if err != nil {
		return message.DeviceMessage{}, err
	}
	msg, err := message.OtaUpgrade(p)
	if err != nil {
		return message.DeviceMessage{}, fmt.Errorf("%w: %w", ErrDownstreamSend, err)
	}
	msg.Topic, err = s.registry.Build(topic.OtaDownstreamUpgradeTask, dev.ProductIdentification, dev.DeviceIdentification, "")
	if err != nil {
		return message.DeviceMessage{}, fmt.Errorf("%w: %w", ErrDownstreamSend, err)
	}
	msg.DeviceID = dev.ID
	msg.TenantID = dev.TenantID
	return msg, s.SendDownstreamMessage(ctx, msg)
}

// CloseConnection disconnects the given broker clients and returns how many were closed.
func (s *Sender) CloseConnection(ctx context.Context, clientIDs []string) (int, error) {
	if len(clientIDs) == 0 {
		return 0, nil
	}
	if s.closer == nil {
		return 0, fmt.Errorf("broker management API is not configured")
	}
	return s.closer.CloseConnection(ctx, clientIDs)
}
