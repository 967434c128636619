// Package api exposes the command, connection, OTA and shadow endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/ibs-source/iot-router/internal/command"
	"github.com/ibs-source/iot-router/internal/directory"
	"github.com/ibs-source/iot-router/internal/log"
	"github.com/ibs-source/iot-router/internal/message"
	iotredis "github.com/ibs-source/iot-router/internal/redis"
	"github.com/ibs-source/iot-router/internal/topic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 1 << 20

// Dispatcher runs command batches.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch command.Batch) []command.Outcome
}

// Downstream is the part of the send API exposed over HTTP.
type Downstream interface {
	SendCustomMessage(ctx context.Context, topic string, payload []byte) (message.DeviceMessage, error)
	SendOtaUpgrade(ctx context.Context, deviceID int64, p message.OtaUpgradeParams) (message.DeviceMessage, error)
	CloseConnection(ctx context.Context, clientIDs []string) (int, error)
}

// ShadowReader reads device shadows.
type ShadowReader interface {
	GetAll(ctx context.Context, deviceID int64) (iotredis.ShadowEntry, error)
}

// Server holds the API handlers
type Server struct {
	dispatcher Dispatcher
	downstream Downstream
	shadow     ShadowReader
	gatherer   prometheus.Gatherer
	schemas    map[string]*gojsonschema.Schema
	log        *log.Logger
}

// New compiles the request schemas.
func New(dispatcher Dispatcher, downstream Downstream, shadow ShadowReader, gatherer prometheus.Gatherer, logger *log.Logger) (*Server, error) {
	s := &Server{
		dispatcher: dispatcher,
		downstream: downstream,
		shadow:     shadow,
		gatherer:   gatherer,
		schemas:    make(map[string]*gojsonschema.Schema, 4),
		log:        logger,
	}
	for name, src := range map[string]string{
		"batch":  batchSchema,
		"close":  closeSchema,
		"custom": customMessageSchema,
		"ota":    otaSchema,
	} {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
		}
		s.schemas[name] = schema
	}
	return s, nil
}

// Handler returns the routed API wrapped in panic recovery.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/commands", s.handleCommands).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/connections/close", s.handleCloseConnections).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/messages", s.handleCustomMessage).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/devices/{id:[0-9]+}/ota", s.handleOtaUpgrade).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/devices/{id:[0-9]+}/shadow", s.handleShadow).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.log.GetLogrus()),
		handlers.PrintRecoveryStack(true),
	)(router)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readValid(w, r, "batch")
	if !ok {
		return
	}
	var batch command.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcomes := s.dispatcher.Dispatch(r.Context(), batch)
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

type closeRequest struct {
	ClientIDs []string `json:"clientIds"`
}

func (s *Server) handleCloseConnections(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readValid(w, r, "close")
	if !ok {
		return
	}
	var req closeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	closed, err := s.downstream.CloseConnection(r.Context(), req.ClientIDs)
	if err != nil {
		s.log.Error("Closing %d connections: %v", len(req.ClientIDs), err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"closed": closed, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": closed})
}

type customRequest struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleCustomMessage(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readValid(w, r, "custom")
	if !ok {
		return
	}
	var req customRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := s.downstream.SendCustomMessage(r.Context(), req.Topic, req.Payload)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"messageId": msg.ID})
	case errors.Is(err, topic.ErrUnrecognizedTopic):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, directory.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		s.log.WarnWithFields(log.MessageFields(msg.ID, req.Topic), "Custom message failed: %v", err)
		writeError(w, http.StatusBadGateway, err)
	}
}

func (s *Server) handleOtaUpgrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body, ok := s.readValid(w, r, "ota")
	if !ok {
		return
	}
	var req message.OtaUpgradeParams
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := s.downstream.SendOtaUpgrade(r.Context(), id, req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"messageId": msg.ID})
	case errors.Is(err, directory.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		s.log.WarnWithFields(log.MessageFields(msg.ID, msg.Topic), "OTA upgrade for device %d failed: %v", id, err)
		writeError(w, http.StatusBadGateway, err)
	}
}

func (s *Server) handleShadow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := s.shadow.GetAll(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if len(entry.Fields) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("no shadow for device %d", id))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// readValid reads the body and checks it against the named schema. On
// failure the response has been written.
func (s *Server) readValid(w http.ResponseWriter, r *http.Request, schema string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return nil, false
	}
	result, err := s.schemas[schema].Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return nil, false
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		writeError(w, http.StatusBadRequest, errors.New(strings.Join(msgs, "; ")))
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
