package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	alarmapp "watergrid-edge/internal/alarms/application"
	alarms "watergrid-edge/internal/alarms/domain"
	masterdata "watergrid-edge/internal/masterdata/domain"
)

// SupplyLineReader loads supply line metadata.
type SupplyLineReader interface {
	Get(ctx context.Context, id string) (*masterdata.SupplyLine, error)
}

// Clock provides time for dedupe bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alarm lifecycle events and delivers them via a channel.
// Repeated identical content for the same alarm and event is suppressed
// within the dedupe window.
type Notifier struct {
	supplyLines SupplyLineReader
	channel     Channel
	template    *Template
	clock       Clock

	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same
// alarm and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an alarm notifier.
func NewNotifier(supplyLines SupplyLineReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		supplyLines: supplyLines,
		channel:     channel,
		template:    template,
		clock:       systemClock{},
		sent:        make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements alarmapp.AlarmNotifier.
func (n *Notifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if n == nil || n.channel == nil {
		return
	}
	data := n.buildTemplateData(ctx, event.Type, event.Alarm)
	content, err := n.template.Render(data)
	if err != nil {
		return
	}
	if !n.shouldSend(event.Alarm.ID, event.Type, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return
	}
	n.markSent(event.Alarm.ID, event.Type, content)
}

func (n *Notifier) buildTemplateData(ctx context.Context, eventType string, alarm alarms.Alarm) TemplateData {
	supplyLineName := alarm.SupplyLineID
	if n.supplyLines != nil {
		if line, err := n.supplyLines.Get(ctx, alarm.SupplyLineID); err == nil && line != nil && line.Name != "" {
			supplyLineName = line.Name
		}
	}
	return TemplateData{
		SupplyLine:   supplyLineName,
		SupplyLineID: alarm.SupplyLineID,
		Parameter:    string(alarm.Parameter),
		Value:        formatFloat(alarm.Value),
		Threshold:    formatFloat(alarm.Threshold),
		Severity:     string(alarm.Severity),
		Status:       string(alarm.Status),
		RaisedAt:     alarm.CreatedAt.UTC().Format(time.RFC3339),
		Message:      alarm.Message,
		Event:        eventType,
		EventLabel:   eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case "active":
		return "Raised"
	case "acknowledged":
		return "Acknowledged"
	case "closed":
		return "Closed"
	default:
		return event
	}
}

func (n *Notifier) shouldSend(alarmID, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alarmID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alarmID, eventType, content string) {
	key := notificationKey(alarmID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alarmID, eventType string) string {
	return alarmID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
