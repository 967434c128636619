package forward

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/topic"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestNew_DisabledWithoutBrokers(t *testing.T) {
	assert.Nil(t, New(&config.KafkaConfig{Topic: "t"}, quietLogger()))
}

func TestNew_TopicFallsBackToBusTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"", message.BusTopic},
		{"custom", "custom"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			f := New(&config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: tt.topic}, quietLogger())
			require.NotNil(t, f)
			w, ok := f.w.(*kafka.Writer)
			require.True(t, ok)
			assert.Equal(t, tt.want, w.Topic)
			require.NoError(t, f.Close())
		})
	}
}

func TestForwarder_Handle(t *testing.T) {
	registry, err := topic.NewRegistry(topic.Catalog()...)
	require.NoError(t, err)
	tpl, err := registry.Lookup(topic.EventUpstreamReport)
	require.NoError(t, err)

	w := &fakeWriter{}
	f := NewWithWriter(w, quietLogger())
	msg := message.DeviceMessage{ID: "m-1", DeviceID: 42, Topic: "/iot/P1/D1/event/upstream/report/alarm", Params: []byte(`{"level":2}`)}
	require.NoError(t, f.Handle(context.Background(), msg, tpl))

	require.Len(t, w.msgs, 1)
	rec := w.msgs[0]
	assert.Equal(t, "42", string(rec.Key))
	assert.Equal(t, string(topic.EventUpstreamReport), header(rec, HeaderKind))
	assert.Equal(t, msg.Topic, header(rec, HeaderTopic))

	decoded, err := message.Decode(rec.Value)
	require.NoError(t, err)
	assert.Equal(t, "m-1", decoded.ID)
	assert.JSONEq(t, `{"level":2}`, string(decoded.Params))

	require.NoError(t, f.Close())
	assert.True(t, w.closed)
}

func TestForwarder_HandleError(t *testing.T) {
	cause := errors.New("leader not available")
	f := NewWithWriter(&fakeWriter{err: cause}, quietLogger())
	tpl := &topic.Template{Kind: topic.ServiceUpstreamInvokeResponse}

	err := f.Handle(context.Background(), message.DeviceMessage{ID: "m"}, tpl)
	assert.ErrorIs(t, err, cause)
}
