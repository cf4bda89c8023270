package mqtt

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	telemetry "watergrid-edge/internal/telemetry/domain"
)

// ErrAlreadyStarted is returned when Start is called on a running source.
var ErrAlreadyStarted = errors.New("mqtt source: already started")

const defaultConnectTimeout = 10 * time.Second

// Source consumes flow meter readings from an MQTT topic and exposes them
// as a telemetry source. The device registry is built from the readings
// themselves: a meter appears once its first reading arrives.
type Source struct {
	broker   string
	topic    string
	clientID string
	qos      byte
	logger   *log.Logger

	mu       sync.Mutex
	client   paho.Client
	devices  map[string]telemetry.Device
	order    []string
	handlers []telemetry.ReadingHandler
	started  bool
}

// Option customizes the source.
type Option func(*Source)

// WithClientID overrides the MQTT client id.
func WithClientID(id string) Option {
	return func(s *Source) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithQoS overrides the subscription QoS.
func WithQoS(qos byte) Option {
	return func(s *Source) {
		if qos <= 2 {
			s.qos = qos
		}
	}
}

// NewSource constructs an MQTT telemetry source.
func NewSource(broker, topic string, logger *log.Logger, opts ...Option) (*Source, error) {
	if broker == "" {
		return nil, errors.New("mqtt source: empty broker")
	}
	if topic == "" {
		return nil, errors.New("mqtt source: empty topic")
	}
	if logger == nil {
		logger = log.Default()
	}
	source := &Source{
		broker:   broker,
		topic:    topic,
		clientID: "watergrid-edge",
		qos:      0,
		logger:   logger,
		devices:  make(map[string]telemetry.Device),
	}
	for _, opt := range opts {
		opt(source)
	}
	return source, nil
}

// Start connects to the broker and subscribes to the reading topic.
func (s *Source) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	opts := paho.NewClientOptions()
	opts.AddBroker(s.broker)
	opts.SetClientID(s.clientID)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetAutoReconnect(true)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return token.Error()
	}
	if token := client.Subscribe(s.topic, s.qos, s.onMessage); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return token.Error()
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.logger.Printf("mqtt source: subscribed broker=%s topic=%s", s.broker, s.topic)
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		if token := client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
			s.logger.Printf("mqtt source: unsubscribe failed: %v", token.Error())
		}
		client.Disconnect(250)
	}
	s.logger.Printf("mqtt source: stopped")
}

// Subscribe registers a reading handler.
func (s *Source) Subscribe(handler telemetry.ReadingHandler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

// ListDevices returns device snapshots in first-seen order.
func (s *Source) ListDevices() []telemetry.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	devices := make([]telemetry.Device, 0, len(s.order))
	for _, id := range s.order {
		devices = append(devices, s.devices[id])
	}
	return devices
}

// LookupDevice returns the snapshot for one meter.
func (s *Source) LookupDevice(meterID string) (telemetry.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[meterID]
	return device, ok
}

type readingPayload struct {
	MeterID       string    `json:"meter_id"`
	SupplyLineID  string    `json:"supply_line_id"`
	MeterType     string    `json:"meter_type"`
	Timestamp     time.Time `json:"timestamp"`
	FlowRate      float64   `json:"flow_rate"`
	TotalVolume   float64   `json:"total_volume"`
	Pressure      float64   `json:"pressure"`
	ValvePosition float64   `json:"valve_position"`
	Status        string    `json:"status"`
}

func (s *Source) onMessage(_ paho.Client, msg paho.Message) {
	var payload readingPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		s.logger.Printf("mqtt source: invalid payload topic=%s: %v", msg.Topic(), err)
		return
	}
	if payload.MeterID == "" {
		s.logger.Printf("mqtt source: payload missing meter_id topic=%s", msg.Topic())
		return
	}

	quality := telemetry.Quality(payload.Status)
	if !quality.Valid() {
		quality = telemetry.QualityOK
	}
	timestamp := payload.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	reading := telemetry.Reading{
		MeterID:       payload.MeterID,
		Timestamp:     timestamp,
		FlowRate:      payload.FlowRate,
		TotalVolume:   payload.TotalVolume,
		Pressure:      payload.Pressure,
		ValvePosition: payload.ValvePosition,
		Quality:       quality,
	}

	s.mu.Lock()
	device, ok := s.devices[payload.MeterID]
	if !ok {
		device = telemetry.Device{ID: payload.MeterID}
		s.order = append(s.order, payload.MeterID)
	}
	if payload.SupplyLineID != "" {
		device.SupplyLineID = payload.SupplyLineID
	}
	if device.SupplyLineID == "" {
		device.SupplyLineID = payload.MeterID
	}
	if payload.MeterType != "" {
		device.MeterType = payload.MeterType
	}
	device.CurrentFlow = payload.FlowRate
	device.CurrentPressure = payload.Pressure
	device.TotalVolume = payload.TotalVolume
	device.ValvePosition = payload.ValvePosition
	s.devices[payload.MeterID] = device
	handlers := append([]telemetry.ReadingHandler(nil), s.handlers...)
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(reading)
	}
}
