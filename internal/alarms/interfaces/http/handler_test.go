package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	alarmapp "watergrid-edge/internal/alarms/application"
	alarms "watergrid-edge/internal/alarms/domain"
	"watergrid-edge/internal/audit"
	telemetry "watergrid-edge/internal/telemetry/domain"
)

type stubSource struct{}

func (stubSource) ListDevices() []telemetry.Device { return nil }
func (stubSource) LookupDevice(string) (telemetry.Device, bool) {
	return telemetry.Device{}, false
}
func (stubSource) Subscribe(telemetry.ReadingHandler) {}

type stubStore struct {
	alarm *alarms.Alarm
	acked bool
}

func (s *stubStore) Create(context.Context, *alarms.Alarm) error { return nil }

func (s *stubStore) GetByID(_ context.Context, id string) (*alarms.Alarm, error) {
	if s.alarm != nil && s.alarm.ID == id {
		copied := *s.alarm
		return &copied, nil
	}
	return nil, nil
}

func (s *stubStore) MarkAcknowledged(_ context.Context, _, _, _ string, _ time.Time) error {
	s.acked = true
	return nil
}

func (s *stubStore) MarkClosed(context.Context, string, time.Time) error { return nil }

type stubRules struct{}

func (stubRules) ListEnabled(context.Context) ([]alarms.AlarmRule, error) { return nil, nil }

type stubReader struct {
	active []alarms.Alarm
	byLine []alarms.Alarm
}

func (s *stubReader) ListActive(context.Context) ([]alarms.Alarm, error) {
	return s.active, nil
}

func (s *stubReader) ListBySupplyLine(_ context.Context, _ string, _ alarms.Status, _ int) ([]alarms.Alarm, error) {
	return s.byLine, nil
}

type captureAudit struct {
	entries []audit.Entry
}

func (c *captureAudit) Log(_ context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func newTestHandler(t *testing.T, store *stubStore, reader *stubReader, auditLogger audit.Logger) *Handler {
	t.Helper()
	logger := log.New(os.Stderr, "", 0)
	engine, err := alarmapp.NewEngine(stubSource{}, store, stubRules{}, logger)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	handler, err := NewHandler(engine, reader, auditLogger)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func activeAlarm() *alarms.Alarm {
	return &alarms.Alarm{
		ID:           "alarm-1",
		SupplyLineID: "line-1",
		Parameter:    alarms.ParameterFlowRate,
		Severity:     alarms.SeverityHigh,
		Status:       alarms.StatusActive,
		CreatedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestListActiveAlarms(t *testing.T) {
	reader := &stubReader{active: []alarms.Alarm{*activeAlarm()}}
	handler := newTestHandler(t, &stubStore{}, reader, nil)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/alarms/active", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var list []alarms.Alarm
	if err := json.Unmarshal(recorder.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != "alarm-1" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestListActiveAlarmsEmptyIsArray(t *testing.T) {
	handler := newTestHandler(t, &stubStore{}, &stubReader{}, nil)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/alarms/active", nil))

	if got := strings.TrimSpace(recorder.Body.String()); got != "[]" {
		t.Fatalf("expected empty array, got %q", got)
	}
}

func TestListBySupplyLineRejectsBadStatus(t *testing.T) {
	handler := newTestHandler(t, &stubStore{}, &stubReader{}, nil)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/alarms/line-1?status=bogus", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestAcknowledgeAlarm(t *testing.T) {
	store := &stubStore{alarm: activeAlarm()}
	auditLog := &captureAudit{}
	handler := newTestHandler(t, store, &stubReader{}, auditLog)

	body := strings.NewReader(`{"acknowledged_by":"operator-7","notes":"checking"}`)
	request := httptest.NewRequest(http.MethodPost, "/api/v1/alarms/alarm-1/acknowledge", body)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if !store.acked {
		t.Fatal("expected store acknowledge call")
	}
	var alarm alarms.Alarm
	if err := json.Unmarshal(recorder.Body.Bytes(), &alarm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if alarm.Status != alarms.StatusAcknowledged || alarm.AcknowledgedBy != "operator-7" {
		t.Fatalf("unexpected alarm: %+v", alarm)
	}
	if len(auditLog.entries) != 1 || auditLog.entries[0].Action != "alarm.acknowledge" {
		t.Fatalf("expected audit entry, got %+v", auditLog.entries)
	}
}

func TestAcknowledgeMissingAlarm(t *testing.T) {
	handler := newTestHandler(t, &stubStore{}, &stubReader{}, nil)

	body := strings.NewReader(`{"acknowledged_by":"operator-7"}`)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/alarms/alarm-nope/acknowledge", body))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestAcknowledgeRequiresUser(t *testing.T) {
	handler := newTestHandler(t, &stubStore{alarm: activeAlarm()}, &stubReader{}, nil)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/alarms/alarm-1/acknowledge", nil))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestStreamBrokerBroadcast(t *testing.T) {
	broker := NewSSEBroker()
	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	broker.Notify(context.Background(), alarmapp.AlarmEvent{Type: "active", Alarm: *activeAlarm()})

	select {
	case payload := <-ch:
		var event alarmapp.AlarmEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if event.Type != "active" || event.Alarm.ID != "alarm-1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("no event broadcast")
	}
}
