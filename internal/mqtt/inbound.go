package mqtt

import (
	"context"
	"time"

	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/topic"
)

// Sink accepts decoded upstream messages.
type Sink interface {
	Publish(msg message.DeviceMessage) int
}

// Inbound turns broker publishes into bus messages. It only admits
// upstream topics of registered devices whose product matches the topic.
type Inbound struct {
	registry      *topic.Registry
	dir           directory.Directory
	sink          Sink
	serverID      string
	lookupTimeout time.Duration
	log           *log.Logger
}

// NewInbound creates the upstream adapter
func NewInbound(
	registry *topic.Registry,
	dir directory.Directory,
	sink Sink,
	serverID string,
	lookupTimeout time.Duration,
	logger *log.Logger,
) *Inbound {
	return &Inbound{
		registry:      registry,
		dir:           dir,
		sink:          sink,
		serverID:      serverID,
		lookupTimeout: lookupTimeout,
		log:           logger,
	}
}

// Handle is the subscription callback. It reports whether the message reached the bus.
func (in *Inbound) Handle(topicName string, payload []byte) bool {
	tpl := in.registry.Match(topicName)
	if tpl == nil {
		in.log.Debug("Dropping publish on %s: %v", topicName, topic.ErrUnrecognizedTopic)
		return false
	}
	// the subscription also sees the router's own downstream publishes
	if tpl.Direction != topic.Upstream {
		return false
	}
	seg, _ := tpl.Extract(topicName)

	ctx := context.Background()
	if in.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.lookupTimeout)
		defer cancel()
	}
	dev, err := in.dir.FindDeviceByIdentification(ctx, seg.Device)
	if err != nil {
		in.log.Warn("Dropping publish on %s: %v", topicName, err)
		return false
	}
	if dev.ProductIdentification != seg.Product {
		in.log.Warn("Dropping publish on %s: device %s belongs to product %s", topicName, seg.Device, dev.ProductIdentification)
		return false
	}

	msg, err := message.Decode(payload)
	if err != nil {
		in.log.Warn("Dropping publish on %s: %v", topicName, err)
		return false
	}
	msg.Topic = topicName
	msg.DeviceID = dev.ID
	msg.TenantID = dev.TenantID
	msg.ServerID = in.serverID

	in.sink.Publish(msg)
	return true
}
