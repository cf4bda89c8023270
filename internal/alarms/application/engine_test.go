package application

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	alarms "watergrid-edge/internal/alarms/domain"
	telemetry "watergrid-edge/internal/telemetry/domain"
)

type stubSource struct {
	devices []telemetry.Device
}

func (s *stubSource) ListDevices() []telemetry.Device {
	return append([]telemetry.Device(nil), s.devices...)
}

func (s *stubSource) LookupDevice(meterID string) (telemetry.Device, bool) {
	for _, device := range s.devices {
		if device.ID == meterID {
			return device, true
		}
	}
	return telemetry.Device{}, false
}

func (s *stubSource) Subscribe(telemetry.ReadingHandler) {}

type stubStore struct {
	created      []alarms.Alarm
	closed       []string
	acked        []string
	failCreate   bool
	failClose    bool
	failAck      bool
	closedStatus map[string]bool
}

func (s *stubStore) Create(_ context.Context, alarm *alarms.Alarm) error {
	if s.failCreate {
		return errors.New("backend down")
	}
	s.created = append(s.created, *alarm)
	return nil
}

func (s *stubStore) GetByID(_ context.Context, id string) (*alarms.Alarm, error) {
	for i := range s.created {
		if s.created[i].ID == id {
			alarm := s.created[i]
			if s.closedStatus[id] {
				alarm.Status = alarms.StatusClosed
			}
			return &alarm, nil
		}
	}
	return nil, nil
}

func (s *stubStore) MarkAcknowledged(_ context.Context, id, _, _ string, _ time.Time) error {
	if s.failAck {
		return errors.New("backend down")
	}
	s.acked = append(s.acked, id)
	return nil
}

func (s *stubStore) MarkClosed(_ context.Context, id string, _ time.Time) error {
	if s.failClose {
		return errors.New("backend down")
	}
	s.closed = append(s.closed, id)
	return nil
}

type stubRules struct {
	rules []alarms.AlarmRule
	err   error
}

func (s stubRules) ListEnabled(context.Context) ([]alarms.AlarmRule, error) {
	return s.rules, s.err
}

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

func testLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}

func newTestEngine(t *testing.T, source *stubSource, store *stubStore, rules stubRules) *Engine {
	t.Helper()
	engine, err := NewEngine(source, store, rules, testLogger(),
		WithClock(fixedClock{at: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.mu.Lock()
	engine.ruleSet = rules.rules
	engine.mu.Unlock()
	return engine
}

func highFlowRule() alarms.AlarmRule {
	return alarms.AlarmRule{
		ID:        "rule-1",
		Parameter: alarms.ParameterFlowRate,
		Condition: alarms.ConditionGreaterThan,
		Threshold: 100,
		Severity:  alarms.SeverityHigh,
		Enabled:   true,
	}
}

func flowDevice(flow float64) telemetry.Device {
	return telemetry.Device{
		ID:           "FM-A1-001",
		SupplyLineID: "line-1",
		CurrentFlow:  flow,
	}
}

func TestEvaluateRaisesOnceForUnchangedViolation(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{highFlowRule()}})

	engine.Evaluate(context.Background())
	engine.Evaluate(context.Background())

	if len(store.created) != 1 {
		t.Fatalf("expected exactly one alarm, got %d", len(store.created))
	}
	alarm := store.created[0]
	if alarm.Status != alarms.StatusActive {
		t.Fatalf("expected active status, got %s", alarm.Status)
	}
	if alarm.Value != 120 || alarm.Threshold != 100 {
		t.Fatalf("unexpected value/threshold: %v/%v", alarm.Value, alarm.Threshold)
	}
	if alarm.Severity != alarms.SeverityHigh {
		t.Fatalf("unexpected severity %s", alarm.Severity)
	}
	if engine.ActiveAlarmCount() != 1 {
		t.Fatalf("expected 1 active alarm, got %d", engine.ActiveAlarmCount())
	}
}

func TestEvaluateClosesOnRecovery(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{highFlowRule()}})

	engine.Evaluate(context.Background())
	source.devices = []telemetry.Device{flowDevice(80)}
	engine.Evaluate(context.Background())

	if len(store.closed) != 1 {
		t.Fatalf("expected one close, got %d", len(store.closed))
	}
	if store.closed[0] != store.created[0].ID {
		t.Fatalf("closed wrong alarm: %s", store.closed[0])
	}
	if engine.ActiveAlarmCount() != 0 {
		t.Fatalf("expected empty index, got %d", engine.ActiveAlarmCount())
	}
}

func TestClosingAbsentScopeIsNoop(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(80)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{highFlowRule()}})

	engine.Evaluate(context.Background())

	if len(store.closed) != 0 {
		t.Fatalf("expected no closes, got %d", len(store.closed))
	}
	if len(store.created) != 0 {
		t.Fatalf("expected no creates, got %d", len(store.created))
	}
}

func TestCreateFailureRetriesNextCycle(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{failCreate: true}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{highFlowRule()}})

	engine.Evaluate(context.Background())
	if engine.ActiveAlarmCount() != 0 {
		t.Fatalf("index must stay empty after create failure")
	}

	store.failCreate = false
	engine.Evaluate(context.Background())
	if len(store.created) != 1 {
		t.Fatalf("expected raise retry to succeed, got %d creates", len(store.created))
	}
	if engine.ActiveAlarmCount() != 1 {
		t.Fatalf("expected 1 active alarm after retry")
	}
}

func TestCloseFailureRetriesNextCycle(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{highFlowRule()}})

	engine.Evaluate(context.Background())
	source.devices = []telemetry.Device{flowDevice(80)}

	store.failClose = true
	engine.Evaluate(context.Background())
	if engine.ActiveAlarmCount() != 1 {
		t.Fatalf("index entry must survive close failure")
	}

	store.failClose = false
	engine.Evaluate(context.Background())
	if len(store.closed) != 1 {
		t.Fatalf("expected close retry to succeed, got %d closes", len(store.closed))
	}
	if engine.ActiveAlarmCount() != 0 {
		t.Fatalf("expected empty index after close retry")
	}
}

func TestUnknownParameterReadsZero(t *testing.T) {
	rule := alarms.AlarmRule{
		ID:        "rule-temp",
		Parameter: alarms.Parameter("temperature"),
		Condition: alarms.ConditionLessThan,
		Threshold: 5,
		Severity:  alarms.SeverityLow,
		Enabled:   true,
	}
	source := &stubSource{devices: []telemetry.Device{flowDevice(50)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{rule}})

	engine.Evaluate(context.Background())

	if len(store.created) != 1 {
		t.Fatalf("expected alarm from zero-default value, got %d", len(store.created))
	}
	if store.created[0].Value != 0 {
		t.Fatalf("expected zero value, got %v", store.created[0].Value)
	}
}

func TestUnknownConditionNeverFires(t *testing.T) {
	rule := highFlowRule()
	rule.Condition = alarms.Condition("within_band")
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{rule}})

	engine.Evaluate(context.Background())

	if len(store.created) != 0 {
		t.Fatalf("unknown condition must never fire, got %d creates", len(store.created))
	}
}

func TestScopedRuleSkipsOtherSupplyLines(t *testing.T) {
	rule := highFlowRule()
	rule.SupplyLineID = "line-2"
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{rule}})

	engine.Evaluate(context.Background())

	if len(store.created) != 0 {
		t.Fatalf("scoped rule fired on wrong supply line")
	}
}

func TestAcknowledgeKeepsScopeOccupied(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{highFlowRule()}})

	engine.Evaluate(context.Background())
	alarmID := store.created[0].ID

	acked, err := engine.Acknowledge(context.Background(), alarmID, "operator-7", "investigating")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if acked.Status != alarms.StatusAcknowledged || acked.AcknowledgedBy != "operator-7" {
		t.Fatalf("unexpected ack result: %+v", acked)
	}

	// Still violating: the acknowledged alarm must block a re-raise.
	engine.Evaluate(context.Background())
	if len(store.created) != 1 {
		t.Fatalf("acknowledged alarm must still deduplicate, got %d creates", len(store.created))
	}

	// Recovery closes the acknowledged alarm.
	source.devices = []telemetry.Device{flowDevice(80)}
	engine.Evaluate(context.Background())
	if len(store.closed) != 1 {
		t.Fatalf("expected acknowledged alarm to close, got %d closes", len(store.closed))
	}
}

func TestAcknowledgeSurfacesBackendError(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{highFlowRule()}})

	engine.Evaluate(context.Background())
	store.failAck = true

	if _, err := engine.Acknowledge(context.Background(), store.created[0].ID, "operator-7", ""); err == nil {
		t.Fatal("expected acknowledge error to surface")
	}
}

func TestAcknowledgeMissingAlarm(t *testing.T) {
	engine := newTestEngine(t, &stubSource{}, &stubStore{}, stubRules{})

	if _, err := engine.Acknowledge(context.Background(), "alarm-nope", "operator-7", ""); !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcknowledgeClosedAlarmIsNoop(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{closedStatus: make(map[string]bool)}
	engine := newTestEngine(t, source, store, stubRules{rules: []alarms.AlarmRule{highFlowRule()}})

	engine.Evaluate(context.Background())
	alarmID := store.created[0].ID
	store.closedStatus[alarmID] = true

	alarm, err := engine.Acknowledge(context.Background(), alarmID, "operator-7", "")
	if err != nil {
		t.Fatalf("acknowledge closed: %v", err)
	}
	if alarm.Status != alarms.StatusClosed {
		t.Fatalf("expected closed status back, got %s", alarm.Status)
	}
	if len(store.acked) != 0 {
		t.Fatalf("closed alarm must not be re-acknowledged")
	}
}

func TestStartTwiceFails(t *testing.T) {
	engine := newTestEngine(t, &stubSource{}, &stubStore{}, stubRules{})

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer engine.Stop()

	if err := engine.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRuleLoadFailureDegradesToEmptySet(t *testing.T) {
	source := &stubSource{devices: []telemetry.Device{flowDevice(120)}}
	store := &stubStore{}
	engine, err := NewEngine(source, store, stubRules{err: errors.New("rule store unreachable")}, testLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start must not fail on rule load error: %v", err)
	}
	engine.Stop()

	engine.Evaluate(context.Background())
	if len(store.created) != 0 {
		t.Fatalf("empty rule set must not fire alarms")
	}
}
