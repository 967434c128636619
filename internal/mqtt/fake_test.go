package mqtt

import (
	"io"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ibs-source/iot-router/internal/config"
	"github.com/ibs-source/iot-router/internal/log"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

// fakePaho records calls; methods it does not override panic on the nil interface.
type fakePaho struct {
	mqtt.Client

	mu           sync.Mutex
	published    []publishCall
	publishToken *fakeToken
	subToken     *fakeToken
	handlers     map[string]mqtt.MessageHandler
	subscribes   int
	connected    bool
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{handlers: map[string]mqtt.MessageHandler{}, connected: true}
}

func (f *fakePaho) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishCall{topic: topic, qos: qos, payload: payload.([]byte)})
	if f.publishToken != nil {
		return f.publishToken
	}
	return completedToken(nil)
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = callback
	f.subscribes++
	if f.subToken != nil {
		return f.subToken
	}
	return completedToken(nil)
}

func (f *fakePaho) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
	}
	return completedToken(nil)
}

// dropSession forgets every broker side subscription, as a clean session
// reconnect does.
func (f *fakePaho) dropSession() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = map[string]mqtt.MessageHandler{}
}

func (f *fakePaho) hasHandler(filter string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[filter]
	return ok
}

func (f *fakePaho) IsConnected() bool { return f.connected }

func (f *fakePaho) Disconnect(uint) {
	f.disconnected = true
	f.connected = false
}

func (f *fakePaho) deliver(filter, topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[filter]
	f.mu.Unlock()
	h(f, &fakeMessage{topic: topic, payload: payload})
}

func (f *fakePaho) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string { return m.topic }

func (m *fakeMessage) Payload() []byte { return m.payload }

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func testMQTTConfig() *config.MQTTConfig {
	return &config.MQTTConfig{
		ClientID:          "router",
		QoS:               1,
		WriteTimeout:      time.Second,
		SubscribeTimeout:  time.Second,
		DisconnectTimeout: 100,
	}
}
