package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	alarmapp "watergrid-edge/internal/alarms/application"
	alarms "watergrid-edge/internal/alarms/domain"
	"watergrid-edge/internal/audit"
	"watergrid-edge/internal/auth"
)

// AlarmReader lists persisted alarms.
type AlarmReader interface {
	ListActive(ctx context.Context) ([]alarms.Alarm, error)
	ListBySupplyLine(ctx context.Context, supplyLineID string, status alarms.Status, limit int) ([]alarms.Alarm, error)
}

// Handler provides alarm HTTP endpoints.
type Handler struct {
	engine *alarmapp.Engine
	reader AlarmReader
	audit  audit.Logger
}

// NewHandler constructs a handler. The audit logger is optional.
func NewHandler(engine *alarmapp.Engine, reader AlarmReader, auditLogger audit.Logger) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("alarms handler: nil engine")
	}
	if reader == nil {
		return nil, errors.New("alarms handler: nil reader")
	}
	return &Handler{engine: engine, reader: reader, audit: auditLogger}, nil
}

// ServeHTTP handles /api/v1/alarms subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/")
	if path == r.URL.Path {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "active":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleListActive(w, r)
	case len(parts) == 2 && parts[1] == "acknowledge":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleAcknowledge(w, r, parts[0])
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleListBySupplyLine(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	list, err := h.reader.ListActive(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alarms.Alarm{}
	}
	writeJSON(w, list)
}

func (h *Handler) handleListBySupplyLine(w http.ResponseWriter, r *http.Request, supplyLineID string) {
	var status alarms.Status
	if value := r.URL.Query().Get("status"); value != "" {
		status = alarms.Status(value)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}
	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	list, err := h.reader.ListBySupplyLine(r.Context(), supplyLineID, status, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alarms.Alarm{}
	}
	writeJSON(w, list)
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
	Notes          string `json:"notes"`
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request, id string) {
	var body acknowledgeRequest
	if r.Body != nil {
		// An empty body is allowed; anything unparseable is not.
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	userID := auth.SubjectFromContext(r.Context())
	if userID == "" {
		userID = body.AcknowledgedBy
	}
	if userID == "" {
		http.Error(w, "acknowledged_by is required", http.StatusBadRequest)
		return
	}

	alarm, err := h.engine.Acknowledge(r.Context(), id, userID, body.Notes)
	if err != nil {
		if errors.Is(err, alarms.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAcknowledge(r, alarm, userID)
	writeJSON(w, alarm)
}

func (h *Handler) logAcknowledge(r *http.Request, alarm *alarms.Alarm, userID string) {
	if h.audit == nil || alarm == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]string{"notes": alarm.Notes})
	_ = h.audit.Log(r.Context(), audit.Entry{
		Actor:        userID,
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "alarm.acknowledge",
		ResourceType: "alarm",
		ResourceID:   alarm.ID,
		SupplyLineID: alarm.SupplyLineID,
		Metadata:     metadata,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
