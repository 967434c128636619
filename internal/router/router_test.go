package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/forward"
	"github.com/ibs-source/iot-router/internal/history"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	"github.com/ibs-source/iot-router/internal/method"
	"github.com/ibs-source/iot-router/internal/mqtt"
	iotredis "github.com/ibs-source/iot-router/internal/redis"
	"github.com/ibs-source/iot-router/internal/storage"
	"github.com/ibs-source/iot-router/internal/topic"
	"github.com/ibs-source/iot-router/internal/worker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu           sync.Mutex
	filter       string
	handler      mqtt.Handler
	subscribed   chan struct{}
	unsubscribed bool
	err          error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscribed: make(chan struct{})}
}

func (f *fakeTransport) Subscribe(filter string, handler mqtt.Handler) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.filter = filter
	f.handler = handler
	f.mu.Unlock()
	close(f.subscribed)
	return nil
}

func (f *fakeTransport) Unsubscribe(filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if filter == f.filter {
		f.unsubscribed = true
	}
	return nil
}

func (f *fakeTransport) deliver(topicName, payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(topicName, []byte(payload))
}

type memoryHistory struct {
	mu     sync.Mutex
	tables []string
	fields []map[string]any
	gate   chan struct{}
}

func (m *memoryHistory) Insert(ctx context.Context, table string, fields, _ []history.Field) error {
	if m.gate != nil {
		<-m.gate
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	row := map[string]any{}
	for _, f := range fields {
		row[f.Name] = f.Value
	}
	m.mu.Lock()
	m.tables = append(m.tables, table)
	m.fields = append(m.fields, row)
	m.mu.Unlock()
	return nil
}

func (m *memoryHistory) rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables)
}

type nopWriter struct{}

func (nopWriter) WriteMessages(context.Context, ...kafka.Message) error { return nil }

func (nopWriter) Close() error { return nil }

type capturingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (c *capturingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msgs...)
	c.mu.Unlock()
	return nil
}

func (c *capturingWriter) Close() error { return nil }

func (c *capturingWriter) written() []kafka.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]kafka.Message(nil), c.msgs...)
}

type harness struct {
	router    *Router
	transport *fakeTransport
	shadow    *iotredis.ShadowCache
	history   *memoryHistory
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func testConfig() *config.Config {
	return &config.Config{
		MQTT:     config.MQTTConfig{SubscribeTopic: "/iot/#"},
		Pipeline: config.PipelineConfig{TaskTimeout: time.Second, ShutdownTimeout: time.Second},
		HTTP:     config.HTTPConfig{Address: "127.0.0.1:0", ReadTimeout: time.Second, WriteTimeout: time.Second},
	}
}

func newHarness(t *testing.T, fwd *forward.Forwarder, handler http.Handler) *harness {
	t.Helper()
	logger := quietLogger()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	shadow := iotredis.NewShadowCache(iotredis.NewFromRedis(rdb, logger), &config.ShadowConfig{
		KeyPrefix:    "iot_device_data:",
		TTL:          time.Hour,
		MergeRetries: 5,
	})

	registry, err := topic.NewRegistry(topic.Catalog()...)
	require.NoError(t, err)
	dir := directory.NewMemory([]directory.Device{
		{ID: 1, TenantID: 10, ProductIdentification: "P1", DeviceIdentification: "D1"},
	}, nil)
	hist := &memoryHistory{}
	transport := newFakeTransport()

	r, err := New(testConfig(), Deps{
		Registry:   registry,
		Directory:  dir,
		Normalizer: method.New(logger),
		Writer:     storage.NewWriter(hist, shadow, dir, logger),
		Forwarder:  fwd,
		Transport:  transport,
		Pool:       worker.NewTaskPool(2, 16, time.Second),
		Handler:    handler,
		ServerID:   "node-a",
	}, logger)
	require.NoError(t, err)

	return &harness{router: r, transport: transport, shadow: shadow, history: hist}
}

func (h *harness) start(t *testing.T) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.router.Run(ctx) }()

	select {
	case <-h.transport.subscribed:
	case err := <-done:
		cancel()
		t.Fatalf("router stopped early: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("router did not subscribe")
	}
	return cancel, done
}

func TestListeners(t *testing.T) {
	h := newHarness(t, nil, nil)

	upstream := 0
	for _, tpl := range h.router.deps.Registry.Templates() {
		if tpl.Direction == topic.Upstream {
			upstream++
			assert.Equal(t, 1, h.router.Bus().Subscribers(tpl.Kind), "kind %s", tpl.Kind)
		}
	}
	assert.Len(t, h.router.listeners(), upstream)

	withForward := newHarness(t, forward.NewWithWriter(nopWriter{}, quietLogger()), nil)
	assert.Len(t, withForward.router.listeners(), upstream+len(forward.Kinds))
	assert.Equal(t, 2, withForward.router.Bus().Subscribers(topic.EventUpstreamReport))
	assert.Equal(t, 0, withForward.router.Bus().Subscribers(topic.ServiceDownstreamInvoke))
}

func TestRun_PropertyReportReachesBothStores(t *testing.T) {
	h := newHarness(t, nil, nil)
	cancel, done := h.start(t)
	defer cancel()

	assert.Equal(t, "/iot/#", h.transport.filter)
	h.transport.deliver("/iot/P1/D1/property/upstream/report", `{"id":"m-1","params":{"temp":21}}`)

	require.Eventually(t, func() bool {
		v, ok, err := h.shadow.GetField(context.Background(), 1, iotredis.FieldExtension)
		return err == nil && ok && strings.Contains(v, `"temp":21`)
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.history.rows() == 1 }, 2*time.Second, 10*time.Millisecond)

	table, _ := storage.HistoryTable(topic.PropertyUpstreamReport)
	h.history.mu.Lock()
	assert.Equal(t, table, h.history.tables[0])
	assert.Equal(t, string(message.MethodPropertyPost), h.history.fields[0]["method"])
	h.history.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
	}
}

func TestRun_UnknownDeviceIsDropped(t *testing.T) {
	h := newHarness(t, nil, nil)
	cancel, _ := h.start(t)
	defer cancel()

	h.transport.deliver("/iot/P1/D9/property/upstream/report", `{"params":{"temp":1}}`)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, h.history.rows())
}

func TestRun_SubscribeFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.transport.err = errors.New("not authorized")

	err := h.router.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}

func TestRun_ServesHTTP(t *testing.T) {
	h := newHarness(t, nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	cancel, done := h.start(t)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
	}
	require.NoError(t, h.router.Close())
}

func TestRun_ShutdownDrainsQueuedDeliveries(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.history.gate = make(chan struct{})
	cancel, done := h.start(t)
	defer cancel()

	for i := 0; i < 5; i++ {
		h.transport.deliver("/iot/P1/D1/property/upstream/report", `{"params":{"temp":21}}`)
	}
	cancel()
	time.AfterFunc(50*time.Millisecond, func() { close(h.history.gate) })

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop")
	}
	assert.Equal(t, 5, h.history.rows())

	h.transport.mu.Lock()
	assert.True(t, h.transport.unsubscribed)
	h.transport.mu.Unlock()
}

func TestRun_ForwardedMessagesCarryCanonicalMethod(t *testing.T) {
	w := &capturingWriter{}
	h := newHarness(t, forward.NewWithWriter(w, quietLogger()), nil)
	cancel, _ := h.start(t)
	defer cancel()

	h.transport.deliver("/iot/P1/D1/event/upstream/report/alarm", `{"id":"e-1","method":"bogus","params":{"level":3}}`)

	require.Eventually(t, func() bool { return len(w.written()) == 1 }, 2*time.Second, 10*time.Millisecond)
	forwarded, err := message.Decode(w.written()[0].Value)
	require.NoError(t, err)
	assert.Equal(t, message.MethodEventPost, forwarded.Method)
	assert.Equal(t, "e-1", forwarded.ID)
}
