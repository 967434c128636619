// Package storage writes device messages to the history store and the device shadow.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/history"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/topic"
)

// ErrStorageWrite marks a failed history or shadow write.
var ErrStorageWrite = errors.New("storage write failed")

// Shadow is the device shadow surface the writer needs.
type Shadow interface {
	SetField(ctx context.Context, deviceID int64, field string, value any) error
	TouchOnline(ctx context.Context, deviceID int64, at time.Time) error
	MergeExtension(ctx context.Context, deviceID int64, subKey string, value json.RawMessage) error
	Expire(ctx context.Context, deviceID int64) error
}

// Writer is the dual-store writer. History and shadow writes are independent:
// one failing never prevents the other.
type Writer struct {
	history history.Inserter
	shadow  Shadow
	dir     directory.Directory
	log     *log.Logger
	now     func() time.Time
}

// NewWriter creates a writer. dir is only used when a topic cannot be parsed.
func NewWriter(h history.Inserter, s Shadow, dir directory.Directory, logger *log.Logger) *Writer {
	return &Writer{
		history: h,
		shadow:  s,
		dir:     dir,
		log:     logger,
		now:     time.Now,
	}
}

// Store persists msg according to the kind of tpl. The returned error wraps
// ErrStorageWrite and joins every failed write.
func (w *Writer) Store(ctx context.Context, msg message.DeviceMessage, tpl *topic.Template) error {
	if tpl == nil {
		return fmt.Errorf("%w: no template for topic %q", ErrStorageWrite, msg.Topic)
	}
	arrival := w.now()

	var errs []error
	if table, ok := HistoryTable(tpl.Kind); ok {
		if err := w.writeHistory(ctx, table, msg, tpl, arrival); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
	}
	if err := w.writeShadow(ctx, msg, tpl.Kind, arrival); err != nil {
		errs = append(errs, fmt.Errorf("shadow: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrStorageWrite}, errs...)...)
	}
	w.log.DebugWithFields(log.MessageFields(msg.ID, msg.Topic), "Stored %s for device %d", tpl.Kind, msg.DeviceID)
	return nil
}

// identity takes product, device and identifier from the topic. The
// directory is consulted only when the topic does not fit the template.
func (w *Writer) identity(ctx context.Context, msg message.DeviceMessage, tpl *topic.Template) topic.Segments {
	if seg, ok := tpl.Extract(msg.Topic); ok {
		return seg
	}
	fields := log.MessageFields(msg.ID, msg.Topic)
	if w.dir == nil || msg.DeviceID == 0 {
		w.log.WarnWithFields(fields, "Cannot identify device from topic")
		return topic.Segments{}
	}
	dev, err := w.dir.FindDeviceByID(ctx, msg.DeviceID)
	if err != nil {
		w.log.WarnWithFields(fields, "Device %d lookup failed: %v", msg.DeviceID, err)
		return topic.Segments{}
	}
	return topic.Segments{Product: dev.ProductIdentification, Device: dev.DeviceIdentification}
}

func (w *Writer) writeHistory(
	ctx context.Context,
	table string,
	msg message.DeviceMessage,
	tpl *topic.Template,
	arrival time.Time,
) error {
	seg := w.identity(ctx, msg, tpl)
	ts := msg.ReportedAt(arrival)

	var code any
	if msg.Code != nil {
		code = *msg.Code
	}

	fields := []history.Field{
		{Name: "ts", Type: history.Timestamp, Value: ts},
		{Name: "report_time", Type: history.BigInt, Value: ts.UnixMilli()},
		{Name: "device_id", Type: history.BigInt, Value: msg.DeviceID},
		{Name: "tenant_id", Type: history.BigInt, Value: msg.TenantID},
		{Name: "product_identification", Type: history.Text, Value: seg.Product},
		{Name: "device_identification", Type: history.Text, Value: seg.Device},
		{Name: "server_id", Type: history.Text, Value: msg.ServerID},
		{Name: "request_id", Type: history.Text, Value: msg.RequestID},
		{Name: "method", Type: history.Text, Value: string(msg.Method)},
		{Name: "params", Type: history.JSON, Value: msg.Params},
		{Name: "data", Type: history.JSON, Value: msg.Data},
		{Name: "code", Type: history.Int, Value: code},
		{Name: "msg", Type: history.Text, Value: msg.Msg},
		{Name: "topic", Type: history.Text, Value: msg.Topic},
	}
	tags := []history.Field{
		{Name: "device_identification", Type: history.Text, Value: seg.Device},
		{Name: "tenant_id", Type: history.BigInt, Value: msg.TenantID},
		{Name: "product_identification", Type: history.Text, Value: seg.Product},
	}
	if identifierKinds[tpl.Kind] {
		identifier := history.Field{Name: "identifier", Type: history.Text, Value: seg.Identifier}
		fields = append(fields, identifier)
		tags = append(tags, identifier)
	}

	return w.history.Insert(ctx, table, fields, tags)
}

func (w *Writer) writeShadow(ctx context.Context, msg message.DeviceMessage, kind topic.Kind, arrival time.Time) error {
	if msg.DeviceID == 0 {
		w.log.WarnWithFields(log.MessageFields(msg.ID, msg.Topic), "Message has no device id, shadow not updated")
		return nil
	}

	update := ShadowUpdateFor(kind)
	payload := msg.Params
	if update.Source == FromData {
		payload = msg.Data
	}

	switch update.Action {
	case MergeExtension:
		if len(payload) == 0 {
			return w.shadow.Expire(ctx, msg.DeviceID)
		}
		return w.shadow.MergeExtension(ctx, msg.DeviceID, update.SubKey, payload)
	case Overwrite:
		if len(payload) == 0 {
			return w.shadow.Expire(ctx, msg.DeviceID)
		}
		return w.shadow.SetField(ctx, msg.DeviceID, update.Field, string(payload))
	case OverwriteVersion:
		var p struct {
			Version string `json:"version"`
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				w.log.WarnWithFields(log.MessageFields(msg.ID, msg.Topic), "Version report params are malformed: %v", err)
			}
		}
		if p.Version == "" {
			return w.shadow.Expire(ctx, msg.DeviceID)
		}
		return w.shadow.SetField(ctx, msg.DeviceID, update.Field, p.Version)
	default:
		return w.shadow.TouchOnline(ctx, msg.DeviceID, msg.ReportedAt(arrival))
	}
}
