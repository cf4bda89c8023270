package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"watergrid-edge/internal/auth"
	"watergrid-edge/internal/historian"
	masterdata "watergrid-edge/internal/masterdata/domain"
	telemetry "watergrid-edge/internal/telemetry/domain"
)

type stubSource struct {
	devices []telemetry.Device
}

func (s *stubSource) ListDevices() []telemetry.Device { return s.devices }
func (s *stubSource) LookupDevice(string) (telemetry.Device, bool) {
	return telemetry.Device{}, false
}
func (s *stubSource) Subscribe(telemetry.ReadingHandler) {}

type stubSizer struct{ size int }

func (s stubSizer) Size() int { return s.size }

type stubCounter struct{ count int }

func (s stubCounter) ActiveAlarmCount() int { return s.count }

type stubLineRepo struct {
	all      []masterdata.SupplyLine
	byVendor []masterdata.SupplyLine
}

func (s *stubLineRepo) Get(context.Context, string) (*masterdata.SupplyLine, error) {
	return nil, nil
}
func (s *stubLineRepo) List(context.Context) ([]masterdata.SupplyLine, error) {
	return s.all, nil
}
func (s *stubLineRepo) ListByVendor(context.Context, string) ([]masterdata.SupplyLine, error) {
	return s.byVendor, nil
}
func (s *stubLineRepo) Save(context.Context, *masterdata.SupplyLine) error { return nil }

type stubFlowReader struct {
	latest  []historian.Record
	ranged  []historian.Record
	gotLine string
}

func (s *stubFlowReader) ListLatest(context.Context) ([]historian.Record, error) {
	return s.latest, nil
}

func (s *stubFlowReader) ListBySupplyLine(_ context.Context, supplyLineID string, _, _ time.Time, _ int) ([]historian.Record, error) {
	s.gotLine = supplyLineID
	return s.ranged, nil
}

func TestStatusHandler(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{{ID: "FM-A1-001"}, {ID: "FM-B1-002"}}}
	handler := NewStatusHandler(source, stubSizer{size: 7}, stubCounter{count: 2}, time.Now().Add(-time.Minute), "1.0.0")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var response statusResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Status != "running" || response.DeviceCount != 2 || response.BufferedPoints != 7 || response.ActiveAlarms != 2 {
		t.Fatalf("unexpected status: %+v", response)
	}
	if response.UptimeSeconds <= 0 {
		t.Fatalf("expected positive uptime, got %v", response.UptimeSeconds)
	}
}

func TestDevicesHandler(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{{ID: "FM-A1-001", SupplyLineID: "line-1"}}}
	handler := NewDevicesHandler(source)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

	var devices []telemetry.Device
	if err := json.Unmarshal(recorder.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "FM-A1-001" {
		t.Fatalf("unexpected devices: %+v", devices)
	}
}

func TestSupplyLinesHandlerScopesVendor(t *testing.T) {
	repo := &stubLineRepo{
		all:      []masterdata.SupplyLine{{ID: "line-1"}, {ID: "line-2"}},
		byVendor: []masterdata.SupplyLine{{ID: "line-1"}},
	}
	handler := NewSupplyLinesHandler(repo)

	request := httptest.NewRequest(http.MethodGet, "/api/v1/supply-lines", nil)
	request = request.WithContext(auth.WithIdentity(request.Context(), "vendor-1", auth.RoleVendor, "user-1"))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var lines []masterdata.SupplyLine
	if err := json.Unmarshal(recorder.Body.Bytes(), &lines); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(lines) != 1 || lines[0].ID != "line-1" {
		t.Fatalf("expected vendor scoping, got %+v", lines)
	}
}

func TestSupplyLinesHandlerAdminSeesAll(t *testing.T) {
	repo := &stubLineRepo{all: []masterdata.SupplyLine{{ID: "line-1"}, {ID: "line-2"}}}
	handler := NewSupplyLinesHandler(repo)

	request := httptest.NewRequest(http.MethodGet, "/api/v1/supply-lines", nil)
	request = request.WithContext(auth.WithIdentity(request.Context(), "", auth.RoleAdmin, "admin-1"))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	var lines []masterdata.SupplyLine
	if err := json.Unmarshal(recorder.Body.Bytes(), &lines); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected all lines, got %+v", lines)
	}
}

func TestFlowDataLatest(t *testing.T) {
	reader := &stubFlowReader{latest: []historian.Record{{SupplyLineID: "line-1", FlowRate: 42}}}
	handler := NewFlowDataHandler(reader)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/flow-data/latest", nil))

	var records []historian.Record
	if err := json.Unmarshal(recorder.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].FlowRate != 42 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestFlowDataRangeValidatesWindow(t *testing.T) {
	handler := NewFlowDataHandler(&stubFlowReader{})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet,
		"/api/v1/flow-data/line-1?from=2026-08-01T12:00:00Z&to=2026-08-01T11:00:00Z", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestFlowDataRange(t *testing.T) {
	reader := &stubFlowReader{ranged: []historian.Record{{SupplyLineID: "line-1"}}}
	handler := NewFlowDataHandler(reader)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet,
		"/api/v1/flow-data/line-1?from=2026-08-01T11:00:00Z&to=2026-08-01T12:00:00Z&limit=50", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if reader.gotLine != "line-1" {
		t.Fatalf("expected supply line from path, got %q", reader.gotLine)
	}
}
