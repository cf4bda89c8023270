package simulator

import (
	"errors"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	telemetry "watergrid-edge/internal/telemetry/domain"
)

// ErrAlreadyStarted is returned when Start is called on a running simulator.
var ErrAlreadyStarted = errors.New("simulator: already started")

const (
	minFlowRate = 10.0
	maxFlowRate = 150.0
	minPressure = 1.0
	maxPressure = 10.0
)

// FlowMeterSimulator generates flow meter readings on a fixed interval.
// It stands in for a real protocol driver and implements telemetry.Source.
type FlowMeterSimulator struct {
	mu       sync.Mutex
	devices  map[string]*telemetry.Device
	order    []string
	handlers []telemetry.ReadingHandler
	interval time.Duration
	logger   *log.Logger
	rng      *rand.Rand
	stop     chan struct{}
	done     chan struct{}
	started  bool
}

// Option customizes the simulator.
type Option func(*FlowMeterSimulator)

// WithRand overrides the random source, for reproducible runs.
func WithRand(rng *rand.Rand) Option {
	return func(s *FlowMeterSimulator) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// New constructs a simulator with the given update interval.
func New(interval time.Duration, logger *log.Logger, opts ...Option) (*FlowMeterSimulator, error) {
	if interval <= 0 {
		return nil, errors.New("simulator: non-positive interval")
	}
	if logger == nil {
		logger = log.Default()
	}
	sim := &FlowMeterSimulator{
		devices:  make(map[string]*telemetry.Device),
		interval: interval,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(sim)
	}
	return sim, nil
}

// AddDevice registers a simulated device.
func (s *FlowMeterSimulator) AddDevice(device telemetry.Device) error {
	if device.ID == "" {
		return errors.New("simulator: empty device id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.devices[device.ID]; !exists {
		s.order = append(s.order, device.ID)
	}
	copied := device
	s.devices[device.ID] = &copied
	s.logger.Printf("simulator: added device id=%s supply_line=%s", device.ID, device.SupplyLineID)
	return nil
}

// Subscribe registers a reading handler. Handlers run synchronously in
// tick order; registration after Start is not supported.
func (s *FlowMeterSimulator) Subscribe(handler telemetry.ReadingHandler) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

// ListDevices returns a snapshot of all devices.
func (s *FlowMeterSimulator) ListDevices() []telemetry.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]telemetry.Device, 0, len(s.order))
	for _, id := range s.order {
		if device, ok := s.devices[id]; ok {
			result = append(result, *device)
		}
	}
	return result
}

// LookupDevice resolves a device by meter id.
func (s *FlowMeterSimulator) LookupDevice(meterID string) (telemetry.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[meterID]
	if !ok {
		return telemetry.Device{}, false
	}
	return *device, true
}

// Start begins the generation loop.
func (s *FlowMeterSimulator) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Printf("simulator: started interval=%s devices=%d", s.interval, len(s.order))
	go s.run()
	return nil
}

// Stop halts the generation loop. Safe to call once after Start.
func (s *FlowMeterSimulator) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
	s.logger.Printf("simulator: stopped")
}

func (s *FlowMeterSimulator) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.tick(now.UTC())
		}
	}
}

// tick advances every device and dispatches readings to subscribers.
func (s *FlowMeterSimulator) tick(now time.Time) {
	s.mu.Lock()
	handlers := append([]telemetry.ReadingHandler(nil), s.handlers...)
	readings := make([]telemetry.Reading, 0, len(s.order))
	for _, id := range s.order {
		device, ok := s.devices[id]
		if !ok {
			continue
		}
		readings = append(readings, s.advance(device, now))
	}
	s.mu.Unlock()

	for _, reading := range readings {
		for _, handler := range handlers {
			handler(reading)
		}
	}
}

func (s *FlowMeterSimulator) advance(device *telemetry.Device, now time.Time) telemetry.Reading {
	flowRate := clamp(device.CurrentFlow+(s.rng.Float64()-0.5)*10, minFlowRate, maxFlowRate)
	pressure := clamp(device.CurrentPressure+(s.rng.Float64()-0.5)*0.5, minPressure, maxPressure)

	// flow in L/s over the interval, accumulated as m³
	volumeIncrement := flowRate * s.interval.Seconds() / 1000
	totalVolume := device.TotalVolume + volumeIncrement

	device.CurrentFlow = flowRate
	device.CurrentPressure = pressure
	device.TotalVolume = totalVolume

	return telemetry.Reading{
		MeterID:       device.ID,
		Timestamp:     now,
		FlowRate:      round3(flowRate),
		TotalVolume:   round3(totalVolume),
		Pressure:      round2(pressure),
		ValvePosition: device.ValvePosition,
		Quality:       qualityFor(flowRate, pressure),
	}
}

func qualityFor(flowRate, pressure float64) telemetry.Quality {
	switch {
	case flowRate > 140 || pressure > 9.5 || flowRate < 5 || pressure < 1.5:
		return telemetry.QualityError
	case flowRate > 120 || pressure > 9:
		return telemetry.QualityWarning
	default:
		return telemetry.QualityOK
	}
}

func clamp(value, low, high float64) float64 {
	return math.Max(low, math.Min(high, value))
}

func round3(value float64) float64 { return math.Round(value*1000) / 1000 }

func round2(value float64) float64 { return math.Round(value*100) / 100 }
