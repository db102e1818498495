package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"walletTracker/internal/metrics"
	"walletTracker/internal/model"
)

const maxBodyBytes = 1 << 20

// Ingester accepts activity events; it must not block.
type Ingester interface {
	Ingest(event model.ActivityEvent)
}

// Handler receives Alchemy webhooks and feeds their events to an Ingester.
type Handler struct {
	registry Recipients
	ingester Ingester
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewHandler(registry Recipients, ingester Ingester, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, ingester: ingester, metrics: m, logger: logger}
}

type ack struct {
	Accepted int            `json:"accepted"`
	Skipped  map[string]int `json:"skipped,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ServeHTTP answers 200 for every payload that parses so the source does not redeliver.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ack{Error: "read body"})
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("undecodable webhook payload", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ack{Error: "invalid json"})
		return
	}

	if payload.IsTest() {
		h.logger.Info("test notification received", zap.String("webhook_id", payload.WebhookID))
		writeJSON(w, http.StatusOK, ack{})
		return
	}

	accepted, skipped, err := h.Accept(payload)
	if err != nil {
		if errors.Is(err, ErrUnsupportedNetwork) {
			writeJSON(w, http.StatusBadRequest, ack{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ack{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, ack{Accepted: accepted, Skipped: skipped})
}

// Accept ingests every event of payload and returns how many were accepted.
func (h *Handler) Accept(payload Payload) (int, map[string]int, error) {
	events, skipped, err := payload.Events(h.registry)
	if err != nil {
		h.logger.Warn("webhook rejected", zap.String("network", payload.Event.Network), zap.Error(err))
		return 0, nil, err
	}
	for reason, n := range skipped {
		h.metrics.EventsSkipped(reason, n)
	}
	for _, event := range events {
		h.ingester.Ingest(event)
	}
	h.logger.Debug("webhook accepted",
		zap.String("webhook_id", payload.WebhookID),
		zap.Int("events", len(events)),
		zap.Any("skipped", skipped),
	)
	return len(events), skipped, nil
}

// RouterOptions adds the operational endpoints next to the webhook route.
type RouterOptions struct {
	Metrics http.Handler
	Health  func() interface{}
}

// NewRouter serves POST /alchemy, GET /healthz and, when set, GET /metrics.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/alchemy", h).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := map[string]interface{}{"status": "ok"}
		if opts.Health != nil {
			status["correlator"] = opts.Health()
		}
		writeJSON(w, http.StatusOK, status)
	}).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
