package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"watergrid-edge/internal/auth"
	"watergrid-edge/internal/historian"
	masterdata "watergrid-edge/internal/masterdata/domain"
	telemetry "watergrid-edge/internal/telemetry/domain"
)

const timeLayout = time.RFC3339

// HealthHandler serves liveness checks.
type HealthHandler struct{}

// ServeHTTP handles GET /healthz.
func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// BufferSizer reports the historian queue length.
type BufferSizer interface {
	Size() int
}

// AlarmCounter reports the number of open alarms.
type AlarmCounter interface {
	ActiveAlarmCount() int
}

// StatusHandler serves the edge server status summary.
type StatusHandler struct {
	source    telemetry.Source
	buffer    BufferSizer
	alarms    AlarmCounter
	startedAt time.Time
	version   string
}

// NewStatusHandler constructs a StatusHandler.
func NewStatusHandler(source telemetry.Source, buffer BufferSizer, alarms AlarmCounter, startedAt time.Time, version string) *StatusHandler {
	return &StatusHandler{source: source, buffer: buffer, alarms: alarms, startedAt: startedAt, version: version}
}

type statusResponse struct {
	Status         string  `json:"status"`
	Version        string  `json:"version"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	DeviceCount    int     `json:"device_count"`
	BufferedPoints int     `json:"buffered_points"`
	ActiveAlarms   int     `json:"active_alarms"`
}

// ServeHTTP handles GET /api/v1/status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.source == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	response := statusResponse{
		Status:        "running",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		DeviceCount:   len(h.source.ListDevices()),
	}
	if h.buffer != nil {
		response.BufferedPoints = h.buffer.Size()
	}
	if h.alarms != nil {
		response.ActiveAlarms = h.alarms.ActiveAlarmCount()
	}
	writeJSON(w, response)
}

// DevicesHandler lists the flow meter registry.
type DevicesHandler struct {
	source telemetry.Source
}

// NewDevicesHandler constructs a DevicesHandler.
func NewDevicesHandler(source telemetry.Source) *DevicesHandler {
	return &DevicesHandler{source: source}
}

// ServeHTTP handles GET /api/v1/devices.
func (h *DevicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.source == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	devices := h.source.ListDevices()
	if devices == nil {
		devices = []telemetry.Device{}
	}
	writeJSON(w, devices)
}

// SupplyLinesHandler lists supply lines, scoped to the caller's vendor
// when the token carries one.
type SupplyLinesHandler struct {
	repo masterdata.SupplyLineRepository
}

// NewSupplyLinesHandler constructs a SupplyLinesHandler.
func NewSupplyLinesHandler(repo masterdata.SupplyLineRepository) *SupplyLinesHandler {
	return &SupplyLinesHandler{repo: repo}
}

// ServeHTTP handles GET /api/v1/supply-lines.
func (h *SupplyLinesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.repo == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	var (
		lines []masterdata.SupplyLine
		err   error
	)
	if vendorID := auth.VendorIDFromContext(r.Context()); vendorID != "" && auth.RoleFromContext(r.Context()) == auth.RoleVendor {
		lines, err = h.repo.ListByVendor(r.Context(), vendorID)
	} else {
		lines, err = h.repo.List(r.Context())
	}
	if err != nil {
		http.Error(w, "query supply lines error", http.StatusInternalServerError)
		return
	}
	if lines == nil {
		lines = []masterdata.SupplyLine{}
	}
	writeJSON(w, lines)
}

// FlowDataReader queries historized flow samples.
type FlowDataReader interface {
	ListLatest(ctx context.Context) ([]historian.Record, error)
	ListBySupplyLine(ctx context.Context, supplyLineID string, from, to time.Time, limit int) ([]historian.Record, error)
}

// FlowDataHandler serves flow data queries.
type FlowDataHandler struct {
	reader FlowDataReader
}

// NewFlowDataHandler constructs a FlowDataHandler.
func NewFlowDataHandler(reader FlowDataReader) *FlowDataHandler {
	return &FlowDataHandler{reader: reader}
}

// ServeHTTP handles /api/v1/flow-data subroutes.
func (h *FlowDataHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/flow-data/")
	if path == r.URL.Path || path == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if path == "latest" {
		h.handleLatest(w, r)
		return
	}
	h.handleRange(w, r, path)
}

func (h *FlowDataHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	records, err := h.reader.ListLatest(r.Context())
	if err != nil {
		http.Error(w, "query flow data error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []historian.Record{}
	}
	writeJSON(w, records)
}

func (h *FlowDataHandler) handleRange(w http.ResponseWriter, r *http.Request, supplyLineID string) {
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
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

	records, err := h.reader.ListBySupplyLine(r.Context(), supplyLineID, from, to, limit)
	if err != nil {
		http.Error(w, "query flow data error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []historian.Record{}
	}
	writeJSON(w, records)
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
