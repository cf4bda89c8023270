package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	alarms "watergrid-edge/internal/alarms/domain"
	"watergrid-edge/internal/observability/metrics"
	telemetry "watergrid-edge/internal/telemetry/domain"
)

// ErrAlreadyStarted is returned when Start is called on a running engine.
var ErrAlreadyStarted = errors.New("alarm engine: already started")

// DefaultCheckInterval is the evaluation cadence when none is configured.
const DefaultCheckInterval = 5 * time.Second

// AlarmStore persists alarm rows.
type AlarmStore interface {
	Create(ctx context.Context, alarm *alarms.Alarm) error
	GetByID(ctx context.Context, id string) (*alarms.Alarm, error)
	MarkAcknowledged(ctx context.Context, id, userID, notes string, ackedAt time.Time) error
	MarkClosed(ctx context.Context, id string, closedAt time.Time) error
}

// RuleStore loads the enabled rule set.
type RuleStore interface {
	ListEnabled(ctx context.Context) ([]alarms.AlarmRule, error)
}

// AlarmNotifier publishes alarm lifecycle events.
type AlarmNotifier interface {
	Notify(ctx context.Context, event AlarmEvent)
}

// AlarmEvent represents a lifecycle update.
type AlarmEvent struct {
	Type  string       `json:"type"`
	Alarm alarms.Alarm `json:"alarm"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Engine evaluates alarm rules against the latest device values on a fixed
// cadence and drives the alarm lifecycle. The in-memory active index mirrors
// the persisted open alarms and is the sole deduplication authority: storage
// is never queried during a cycle.
type Engine struct {
	source   telemetry.Source
	store    AlarmStore
	rules    RuleStore
	notifier AlarmNotifier
	clock    Clock
	logger   *log.Logger
	interval time.Duration

	mu      sync.Mutex
	active  map[string]alarms.Alarm
	ruleSet []alarms.AlarmRule
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// Option customizes the engine.
type Option func(*Engine)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlarmNotifier) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithInterval overrides the evaluation cadence.
func WithInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.interval = interval
		}
	}
}

// NewEngine constructs an alarm engine.
func NewEngine(source telemetry.Source, store AlarmStore, rules RuleStore, logger *log.Logger, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errors.New("alarm engine: nil telemetry source")
	}
	if store == nil {
		return nil, errors.New("alarm engine: nil alarm store")
	}
	if rules == nil {
		return nil, errors.New("alarm engine: nil rule store")
	}
	if logger == nil {
		logger = log.Default()
	}
	engine := &Engine{
		source:   source,
		store:    store,
		rules:    rules,
		logger:   logger,
		clock:    systemClock{},
		interval: DefaultCheckInterval,
		active:   make(map[string]alarms.Alarm),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Start loads the rule set and begins the evaluation loop. A rule store
// failure degrades to an empty rule set rather than aborting startup.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.mu.Unlock()

	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		e.logger.Printf("alarm engine: rule load failed, evaluating with empty rule set: %v", err)
		rules = nil
	}
	e.mu.Lock()
	e.ruleSet = rules
	e.mu.Unlock()

	e.logger.Printf("alarm engine: started interval=%s rules=%d", e.interval, len(rules))
	go e.run()
	return nil
}

// Stop halts the evaluation loop. Safe to call once after Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.stop)
	done := e.done
	e.mu.Unlock()
	<-done
	e.logger.Printf("alarm engine: stopped")
}

func (e *Engine) run() {
	defer close(e.done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.Evaluate(context.Background())
		}
	}
}

// Evaluate runs one evaluation cycle over the current device snapshot.
func (e *Engine) Evaluate(ctx context.Context) {
	start := e.clock.Now()
	result := metrics.ResultSuccess

	e.mu.Lock()
	rules := e.ruleSet
	e.mu.Unlock()

	if len(rules) > 0 {
		for _, device := range e.source.ListDevices() {
			for _, rule := range rules {
				if !rule.AppliesTo(device.SupplyLineID) {
					continue
				}
				if !e.evaluateRule(ctx, rule, device) {
					result = metrics.ResultError
				}
			}
		}
	}
	metrics.ObserveEvalCycle(result, e.clock.Now().Sub(start))
}

// evaluateRule applies one rule to one device. Returns false when a backend
// write failed; the in-memory index is then left at the transition's
// precondition so the next cycle retries.
func (e *Engine) evaluateRule(ctx context.Context, rule alarms.AlarmRule, device telemetry.Device) bool {
	value := parameterValue(rule.Parameter, device)
	key := alarms.ScopeKey(device.SupplyLineID, rule.Parameter)

	e.mu.Lock()
	open, isOpen := e.active[key]
	e.mu.Unlock()

	if rule.Condition.Matches(value, rule.Threshold) {
		if isOpen {
			// Already raised for this scope: no re-raise, no update.
			return true
		}
		return e.raise(ctx, rule, device, value, key)
	}
	if !isOpen {
		// Nothing to close for this scope.
		return true
	}
	return e.close(ctx, open, key)
}

func (e *Engine) raise(ctx context.Context, rule alarms.AlarmRule, device telemetry.Device, value float64, key string) bool {
	now := e.clock.Now().UTC()
	alarm := alarms.Alarm{
		ID:           buildAlarmID(device.SupplyLineID, rule.ID, now),
		SupplyLineID: device.SupplyLineID,
		Parameter:    rule.Parameter,
		AlarmType:    string(rule.Parameter) + "_" + string(rule.Condition),
		Severity:     rule.Severity,
		Message:      renderMessage(rule, device, value),
		Value:        value,
		Threshold:    rule.Threshold,
		Status:       alarms.StatusActive,
		CreatedAt:    now,
	}
	if err := e.store.Create(ctx, &alarm); err != nil {
		// No index entry is added, so the next cycle retries the raise.
		e.logger.Printf("alarm engine: create failed supply_line=%s parameter=%s: %v", device.SupplyLineID, rule.Parameter, err)
		return false
	}
	e.mu.Lock()
	e.active[key] = alarm
	count := len(e.active)
	e.mu.Unlock()
	metrics.SetActiveAlarms(count)
	e.logger.Printf("alarm engine: alarm raised id=%s supply_line=%s parameter=%s value=%v threshold=%v severity=%s",
		alarm.ID, alarm.SupplyLineID, alarm.Parameter, alarm.Value, alarm.Threshold, alarm.Severity)
	e.notify(ctx, "active", alarm)
	return true
}

func (e *Engine) close(ctx context.Context, open alarms.Alarm, key string) bool {
	closedAt := e.clock.Now().UTC()
	if err := e.store.MarkClosed(ctx, open.ID, closedAt); err != nil {
		// Index entry is kept, so the next cycle retries the close.
		e.logger.Printf("alarm engine: close failed id=%s: %v", open.ID, err)
		return false
	}
	e.mu.Lock()
	delete(e.active, key)
	count := len(e.active)
	e.mu.Unlock()
	metrics.SetActiveAlarms(count)
	open.Status = alarms.StatusClosed
	open.ClosedAt = closedAt
	e.logger.Printf("alarm engine: alarm closed id=%s supply_line=%s parameter=%s", open.ID, open.SupplyLineID, open.Parameter)
	e.notify(ctx, "closed", open)
	return true
}

// Acknowledge marks a stored alarm as acknowledged. The active index is not
// touched: an acknowledged alarm still occupies its scope until rule
// re-evaluation closes it. Backend failures are returned to the caller.
func (e *Engine) Acknowledge(ctx context.Context, id, userID, notes string) (*alarms.Alarm, error) {
	if id == "" {
		return nil, errors.New("alarm engine: alarm id required")
	}
	alarm, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alarm == nil {
		return nil, alarms.ErrNotFound
	}
	if alarm.Status == alarms.StatusClosed {
		return alarm, nil
	}
	ackedAt := e.clock.Now().UTC()
	if err := e.store.MarkAcknowledged(ctx, id, userID, notes, ackedAt); err != nil {
		e.logger.Printf("alarm engine: acknowledge failed id=%s: %v", id, err)
		return nil, err
	}
	alarm.Status = alarms.StatusAcknowledged
	alarm.AcknowledgedBy = userID
	alarm.AcknowledgedAt = ackedAt
	alarm.Notes = notes
	e.logger.Printf("alarm engine: alarm acknowledged id=%s user=%s", id, userID)
	e.notify(ctx, "acknowledged", *alarm)
	return alarm, nil
}

// ActiveAlarmCount returns the size of the active index.
func (e *Engine) ActiveAlarmCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Engine) notify(ctx context.Context, eventType string, alarm alarms.Alarm) {
	metrics.IncAlarmEvent(eventType)
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, AlarmEvent{Type: eventType, Alarm: alarm})
}

// parameterValue extracts the device value a rule targets. An unknown
// parameter reads as zero, by contract.
func parameterValue(parameter alarms.Parameter, device telemetry.Device) float64 {
	switch parameter {
	case alarms.ParameterFlowRate:
		return device.CurrentFlow
	case alarms.ParameterPressure:
		return device.CurrentPressure
	case alarms.ParameterValvePosition:
		return device.ValvePosition
	case alarms.ParameterTotalVolume:
		return device.TotalVolume
	default:
		return 0
	}
}

func renderMessage(rule alarms.AlarmRule, device telemetry.Device, value float64) string {
	template := rule.MessageTemplate
	if template == "" {
		template = "{parameter} " + string(rule.Condition) + " {threshold} on supply line {supply_line_id}"
	}
	replacer := strings.NewReplacer(
		"{supply_line_id}", device.SupplyLineID,
		"{supply_line_name}", device.SupplyLineID,
		"{meter_id}", device.ID,
		"{parameter}", string(rule.Parameter),
		"{value}", strconv.FormatFloat(value, 'f', -1, 64),
		"{threshold}", strconv.FormatFloat(rule.Threshold, 'f', -1, 64),
	)
	return replacer.Replace(template)
}

func buildAlarmID(supplyLineID, ruleID string, createdAt time.Time) string {
	sum := sha1.Sum([]byte(supplyLineID + "|" + ruleID + "|" + createdAt.Format(time.RFC3339Nano)))
	return "alarm-" + hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
