package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/ibs-source/iot-router/internal/command"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	iotredis "github.com/ibs-source/iot-router/internal/redis"
	"github.com/ibs-source/iot-router/internal/topic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	got command.Batch
}

func (f *fakeDispatcher) Dispatch(_ context.Context, batch command.Batch) []command.Outcome {
	f.got = batch
	out := make([]command.Outcome, 0, batch.Len())
	for i, e := range batch.Serial {
		out = append(out, command.Outcome{Group: command.GroupSerial, EntryIndex: i, DeviceIdentification: e.DeviceIdentification, Status: command.StatusSent})
	}
	for i, e := range batch.Parallel {
		out = append(out, command.Outcome{Group: command.GroupParallel, EntryIndex: i, DeviceIdentification: e.DeviceIdentification, Status: command.StatusDeviceNotFound, Error: "device not found"})
	}
	return out
}

type fakeDownstream struct {
	closed     int
	closeErr   error
	clientIDs  []string
	customErr  error
	customSent []string
	ota        map[int64]message.OtaUpgradeParams
}

func (f *fakeDownstream) SendCustomMessage(_ context.Context, topicName string, payload []byte) (message.DeviceMessage, error) {
	if f.customErr != nil {
		return message.DeviceMessage{}, f.customErr
	}
	f.customSent = append(f.customSent, topicName+" "+string(payload))
	return message.DeviceMessage{ID: "msg-1", Topic: topicName}, nil
}

func (f *fakeDownstream) SendOtaUpgrade(_ context.Context, deviceID int64, p message.OtaUpgradeParams) (message.DeviceMessage, error) {
	switch deviceID {
	case 404:
		return message.DeviceMessage{}, fmt.Errorf("lookup: %w", directory.ErrDeviceNotFound)
	case 502:
		return message.DeviceMessage{}, errors.New("broker unavailable")
	}
	if f.ota == nil {
		f.ota = map[int64]message.OtaUpgradeParams{}
	}
	f.ota[deviceID] = p
	return message.DeviceMessage{ID: "ota-1"}, nil
}

func (f *fakeDownstream) CloseConnection(_ context.Context, clientIDs []string) (int, error) {
	f.clientIDs = clientIDs
	return f.closed, f.closeErr
}

type fakeShadow map[int64]iotredis.ShadowEntry

func (f fakeShadow) GetAll(_ context.Context, id int64) (iotredis.ShadowEntry, error) {
	if id == 500 {
		return iotredis.ShadowEntry{}, errors.New("redis down")
	}
	e, ok := f[id]
	if !ok {
		return iotredis.ShadowEntry{DeviceID: id, Fields: map[string]json.RawMessage{}}, nil
	}
	return e, nil
}

type fixture struct {
	handler    http.Handler
	dispatcher *fakeDispatcher
	downstream *fakeDownstream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "iot_router_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	f := &fixture{dispatcher: &fakeDispatcher{}, downstream: &fakeDownstream{closed: 2}}
	shadow := fakeShadow{
		1: {DeviceID: 1, Fields: map[string]json.RawMessage{
			iotredis.FieldExtension: json.RawMessage(`{"properties":{"temp":21}}`),
		}},
	}
	s, err := New(f.dispatcher, f.downstream, shadow, reg, logger)
	require.NoError(t, err)
	f.handler = s.Handler()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

const validEntry = `{"productIdentification":"P1","deviceIdentification":"%s","msgType":"cloudReq","serviceCode":"reboot","commandName":"Reboot","commandCode":"reboot","params":{"delay":5}}`

func TestCommands(t *testing.T) {
	f := newFixture(t)
	body := fmt.Sprintf(`{"serial":[`+validEntry+`],"parallel":[`+validEntry+`]}`, "D1", "ALL")

	rec := f.do(http.MethodPost, "/api/v1/commands", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Outcomes []command.Outcome `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, command.StatusSent, resp.Outcomes[0].Status)
	assert.Equal(t, command.StatusDeviceNotFound, resp.Outcomes[1].Status)

	require.Len(t, f.dispatcher.got.Serial, 1)
	assert.Equal(t, "D1", f.dispatcher.got.Serial[0].DeviceIdentification)
	assert.Equal(t, float64(5), f.dispatcher.got.Serial[0].Params["delay"])
	assert.Equal(t, command.Broadcast, f.dispatcher.got.Parallel[0].DeviceIdentification)
}

func TestCommands_RejectsInvalidBatch(t *testing.T) {
	cases := map[string]string{
		"NotJSON":      `{"serial":`,
		"Empty":        `{}`,
		"MissingField": `{"serial":[{"productIdentification":"P1","deviceIdentification":"D1"}]}`,
		"UnknownGroup": `{"later":[]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, "/api/v1/commands", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestCloseConnections(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/connections/close", `{"clientIds":["c-1","c-2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"closed":2}`, rec.Body.String())
	assert.Equal(t, []string{"c-1", "c-2"}, f.downstream.clientIDs)

	f.downstream.closeErr = errors.New("close client c-2: unexpected status 500")
	f.downstream.closed = 1
	rec = f.do(http.MethodPost, "/api/v1/connections/close", `{"clientIds":["c-1","c-2"]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"closed":1`)

	rec = f.do(http.MethodPost, "/api/v1/connections/close", `{"clientIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCustomMessage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/messages", `{"topic":"/iot/P1/D1/shadow/downstream/desired","payload":{"mode":"eco"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"messageId":"msg-1"}`, rec.Body.String())
	require.Len(t, f.downstream.customSent, 1)
	assert.Contains(t, f.downstream.customSent[0], `"mode":"eco"`)

	errCases := map[error]int{
		fmt.Errorf("%w: /iot/x", topic.ErrUnrecognizedTopic):     http.StatusBadRequest,
		fmt.Errorf("%w: D9", directory.ErrDeviceNotFound):        http.StatusNotFound,
		errors.New("downstream send failed: broker unavailable"): http.StatusBadGateway,
	}
	for err, status := range errCases {
		f.downstream.customErr = err
		rec := f.do(http.MethodPost, "/api/v1/messages", `{"topic":"/iot/P1/D1/shadow/downstream/desired","payload":{}}`)
		assert.Equal(t, status, rec.Code, err.Error())
	}

	rec = f.do(http.MethodPost, "/api/v1/messages", `{"topic":"devices/D1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShadow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/devices/1/shadow", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deviceId":1,"fields":{"extension":{"properties":{"temp":21}}}}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/devices/2/shadow", "").Code)
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/v1/devices/500/shadow", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/devices/abc/shadow", "").Code)
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iot_router_test_total 1")

	rec = f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/v1/commands", "").Code)
}

func TestOtaUpgrade(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/devices/7/ota", `{"version":"1.2.0","fileUrl":"https://fw/1.2.0.bin","fileSize":1024}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"messageId":"ota-1"}`, rec.Body.String())
	assert.Equal(t, "1.2.0", f.downstream.ota[7].Version)
	assert.Equal(t, int64(1024), f.downstream.ota[7].FileSize)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"missing url", "/api/v1/devices/7/ota", `{"version":"1.2.0"}`, http.StatusBadRequest},
		{"negative size", "/api/v1/devices/7/ota", `{"version":"1","fileUrl":"u","fileSize":-1}`, http.StatusBadRequest},
		{"unknown device", "/api/v1/devices/404/ota", `{"version":"1","fileUrl":"u"}`, http.StatusNotFound},
		{"send failure", "/api/v1/devices/502/ota", `{"version":"1","fileUrl":"u"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(http.MethodPost, tt.path, tt.body).Code)
		})
	}
}
