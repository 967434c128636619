package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/topic"
	"github.com/ibs-source/iot-router/internal/worker"
	"github.com/sirupsen/logrus"
)

// Sender is the downstream send API used for every resolved device.
type Sender interface {
	SendDownstreamMessage(ctx context.Context, msg message.DeviceMessage) error
}

// Submitter runs parallel entries.
type Submitter interface {
	Submit(worker.Task) error
}

// Dispatcher resolves batch entries to devices and sends one message per device.
type Dispatcher struct {
	registry    *topic.Registry
	dir         directory.Directory
	sender      Sender
	pool        Submitter
	sendTimeout time.Duration
	log         *log.Logger
}

// NewDispatcher creates a dispatcher. A nil pool runs parallel entries on
// their own goroutines.
func NewDispatcher(
	registry *topic.Registry,
	dir directory.Directory,
	sender Sender,
	pool Submitter,
	sendTimeout time.Duration,
	logger *log.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		dir:         dir,
		sender:      sender,
		pool:        pool,
		sendTimeout: sendTimeout,
		log:         logger,
	}
}

type entryResult struct {
	index    int
	outcomes []Outcome
}

// Dispatch runs the serial entries in order, then the parallel entries
// concurrently. It returns one outcome per resolved device plus one per
// unresolved entry: serial first, then parallel by entry index.
func (d *Dispatcher) Dispatch(ctx context.Context, batch Batch) []Outcome {
	outcomes := make([]Outcome, 0, batch.Len())
	for i, entry := range batch.Serial {
		outcomes = append(outcomes, d.process(ctx, GroupSerial, i, entry)...)
	}
	outcomes = append(outcomes, d.dispatchParallel(ctx, batch.Parallel)...)

	sent := 0
	for _, o := range outcomes {
		if o.Status == StatusSent {
			sent++
		}
	}
	d.log.Info("Dispatched %d commands: %d of %d device messages sent", batch.Len(), sent, len(outcomes))
	return outcomes
}

func (d *Dispatcher) dispatchParallel(ctx context.Context, entries []Entry) []Outcome {
	if len(entries) == 0 {
		return nil
	}

	results := make(chan entryResult, len(entries))
	for i, entry := range entries {
		i, entry := i, entry
		run := func(taskCtx context.Context) error {
			results <- entryResult{index: i, outcomes: d.process(taskCtx, GroupParallel, i, entry)}
			return nil
		}
		if d.pool == nil {
			go func() { _ = run(context.WithoutCancel(ctx)) }()
			continue
		}
		task := worker.Task{Name: fmt.Sprintf("command/%s/%d", entry.CommandCode, i), Run: run}
		if err := d.pool.Submit(task); err != nil {
			d.log.Debug("Running parallel command %d inline: %v", i, err)
			_ = run(ctx)
		}
	}

	byIndex := make([][]Outcome, len(entries))
	done := make([]bool, len(entries))
	for received := 0; received < len(entries); received++ {
		select {
		case r := <-results:
			byIndex[r.index] = r.outcomes
			done[r.index] = true
		case <-ctx.Done():
			for i, entry := range entries {
				if !done[i] {
					byIndex[i] = []Outcome{failed(GroupParallel, i, entry.DeviceIdentification, StatusSendFailed, ctx.Err())}
				}
			}
			received = len(entries)
		}
	}

	outcomes := make([]Outcome, 0, len(entries))
	for _, o := range byIndex {
		outcomes = append(outcomes, o...)
	}
	return outcomes
}

// process resolves one entry and sends to every device it names.
func (d *Dispatcher) process(ctx context.Context, group string, index int, entry Entry) []Outcome {
	devices, err := d.resolve(ctx, entry)
	if err != nil {
		d.log.WarnWithFields(entryFields(group, index, entry), "Skipping command: %v", err)
		return []Outcome{failed(group, index, entry.DeviceIdentification, StatusDeviceNotFound, err)}
	}

	outcomes := make([]Outcome, 0, len(devices))
	keys := make(map[string]directory.EncryptionParams, 1)
	for _, dev := range devices {
		outcomes = append(outcomes, d.send(ctx, group, index, entry, dev, keys))
	}
	return outcomes
}

func (d *Dispatcher) resolve(ctx context.Context, entry Entry) ([]directory.Device, error) {
	if entry.DeviceIdentification == Broadcast {
		devices, err := d.dir.FindDevicesByProduct(ctx, entry.ProductIdentification)
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("%w: product %s has no devices", directory.ErrDeviceNotFound, entry.ProductIdentification)
		}
		return devices, nil
	}

	dev, err := d.dir.FindDeviceByIdentification(ctx, entry.DeviceIdentification)
	if err != nil {
		return nil, err
	}
	return []directory.Device{dev}, nil
}

func (d *Dispatcher) send(
	ctx context.Context,
	group string,
	index int,
	entry Entry,
	dev directory.Device,
	keys map[string]directory.EncryptionParams,
) Outcome {
	out := Outcome{
		Group:                group,
		EntryIndex:           index,
		DeviceIdentification: dev.DeviceIdentification,
		DeviceID:             dev.ID,
	}

	resolved, err := d.bind(ctx, group, index, entry, dev, keys)
	if err != nil {
		return d.fail(out, entry, StatusBuildFailed, err)
	}
	payload, err := buildPayload(resolved)
	if err != nil {
		return d.fail(out, entry, StatusBuildFailed, err)
	}

	msg := message.DeviceMessage{
		ID:        uuid.NewString(),
		DeviceID:  dev.ID,
		TenantID:  dev.TenantID,
		RequestID: entry.MsgID,
		Method:    message.MethodServiceInvoke,
		Params:    payload,
		Topic:     resolved.Topic,
	}
	out.MessageID = msg.ID

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}
	if err := d.sender.SendDownstreamMessage(sendCtx, msg); err != nil {
		return d.fail(out, entry, StatusSendFailed, err)
	}
	out.Status = StatusSent
	return out
}

// bind attaches the topic and the product keys. keys caches lookups per product.
func (d *Dispatcher) bind(
	ctx context.Context,
	group string,
	index int,
	entry Entry,
	dev directory.Device,
	keys map[string]directory.EncryptionParams,
) (Resolved, error) {
	topicName, err := d.registry.Build(topic.ServiceDownstreamInvoke, dev.ProductIdentification, dev.DeviceIdentification, entry.Identifier())
	if err != nil {
		return Resolved{}, err
	}

	enc, ok := keys[dev.ProductIdentification]
	if !ok {
		enc, err = d.dir.ProductEncryptionParams(ctx, dev.ProductIdentification)
		if err != nil {
			return Resolved{}, err
		}
		keys[dev.ProductIdentification] = enc
	}

	return Resolved{
		Group:      group,
		EntryIndex: index,
		Entry:      entry,
		Device:     dev,
		Encryption: enc,
		Topic:      topicName,
	}, nil
}

func (d *Dispatcher) fail(out Outcome, entry Entry, status Status, err error) Outcome {
	fields := entryFields(out.Group, out.EntryIndex, entry)
	fields["device_identification"] = out.DeviceIdentification
	d.log.ErrorWithFields(fields, "Command %s: %v", status, err)
	out.Status = status
	out.Error = err.Error()
	return out
}

func failed(group string, index int, device string, status Status, err error) Outcome {
	return Outcome{
		Group:                group,
		EntryIndex:           index,
		DeviceIdentification: device,
		Status:               status,
		Error:                err.Error(),
	}
}

func entryFields(group string, index int, entry Entry) logrus.Fields {
	return logrus.Fields{
		"group":        group,
		"entry":        index,
		"product":      entry.ProductIdentification,
		"command_code": entry.CommandCode,
	}
}
