package historian

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"watergrid-edge/internal/observability/metrics"
	telemetry "watergrid-edge/internal/telemetry/domain"
)

// ErrAlreadyStarted is returned when Start is called on a running buffer.
var ErrAlreadyStarted = errors.New("historian: already started")

// Defaults match the edge server's shipping configuration.
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 10 * time.Second
)

// Record is one historized flow sample keyed by supply line.
type Record struct {
	Time          time.Time `json:"time"`
	SupplyLineID  string    `json:"supply_line_id"`
	FlowRate      float64   `json:"flow_rate"`
	TotalVolume   float64   `json:"total_volume"`
	Pressure      float64   `json:"pressure"`
	ValvePosition float64   `json:"valve_position"`
	Status        string    `json:"status"`
}

// FlowDataWriter persists historian batches.
type FlowDataWriter interface {
	InsertBatch(ctx context.Context, records []Record) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Buffer accumulates telemetry readings in memory and writes them to the
// historian backend in batches. A batch is flushed when the queue reaches
// the batch size, on every flush interval tick, and once more on shutdown.
// A failed batch goes back to the front of the queue so no reading is lost
// and write order is preserved.
type Buffer struct {
	source        telemetry.Source
	writer        FlowDataWriter
	logger        *log.Logger
	clock         Clock
	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	queue   []Record
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// Option customizes the buffer.
type Option func(*Buffer)

// WithBatchSize overrides the flush threshold.
func WithBatchSize(size int) Option {
	return func(b *Buffer) {
		if size > 0 {
			b.batchSize = size
		}
	}
}

// WithFlushInterval overrides the periodic flush cadence.
func WithFlushInterval(interval time.Duration) Option {
	return func(b *Buffer) {
		if interval > 0 {
			b.flushInterval = interval
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(b *Buffer) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// NewBuffer constructs a historian buffer.
func NewBuffer(source telemetry.Source, writer FlowDataWriter, logger *log.Logger, opts ...Option) (*Buffer, error) {
	if source == nil {
		return nil, errors.New("historian: nil telemetry source")
	}
	if writer == nil {
		return nil, errors.New("historian: nil flow data writer")
	}
	if logger == nil {
		logger = log.Default()
	}
	buffer := &Buffer{
		source:        source,
		writer:        writer,
		logger:        logger,
		clock:         systemClock{},
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
	}
	for _, opt := range opts {
		opt(buffer)
	}
	return buffer, nil
}

// Start subscribes to the telemetry source and begins the periodic flush loop.
func (b *Buffer) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	b.mu.Unlock()

	b.source.Subscribe(b.OnReading)
	b.logger.Printf("historian: started batch_size=%d flush_interval=%s", b.batchSize, b.flushInterval)
	go b.run()
	return nil
}

// Stop halts the flush loop and drains the queue with a final flush.
func (b *Buffer) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	close(b.stop)
	done := b.done
	b.mu.Unlock()
	<-done

	if err := b.Flush(context.Background()); err != nil {
		b.logger.Printf("historian: final flush failed: %v", err)
	}
	b.logger.Printf("historian: stopped buffered=%d", b.Size())
}

func (b *Buffer) run() {
	defer close(b.done)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.Flush(context.Background()); err != nil {
				b.logger.Printf("historian: periodic flush failed: %v", err)
			}
		}
	}
}

// OnReading enqueues one telemetry reading. Reaching the batch size flushes
// immediately on the caller's goroutine.
func (b *Buffer) OnReading(reading telemetry.Reading) {
	metrics.IncReading()
	record := b.normalize(reading)

	b.mu.Lock()
	b.queue = append(b.queue, record)
	size := len(b.queue)
	b.mu.Unlock()
	metrics.SetBufferSize(size)

	if size >= b.batchSize {
		if err := b.Flush(context.Background()); err != nil {
			b.logger.Printf("historian: batch flush failed: %v", err)
		}
	}
}

// Flush writes everything currently queued as a single batch. On failure
// the batch is put back at the front of the queue, ahead of readings that
// arrived while the write was in flight.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	start := b.clock.Now()
	err := b.writer.InsertBatch(ctx, batch)
	duration := b.clock.Now().Sub(start)
	if err != nil {
		b.mu.Lock()
		b.queue = append(batch, b.queue...)
		size := len(b.queue)
		b.mu.Unlock()
		metrics.SetBufferSize(size)
		metrics.ObserveFlush(metrics.ResultError, duration, 0)
		return err
	}

	metrics.ObserveFlush(metrics.ResultSuccess, duration, len(batch))
	metrics.SetBufferSize(b.Size())
	b.logger.Printf("historian: flushed records=%d", len(batch))
	return nil
}

// Size returns the number of queued records.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// normalize converts a raw reading into a historian record. The reading is
// keyed by meter id; the record is keyed by the meter's supply line. A meter
// unknown to the source keeps its meter id as the key so the sample is not
// dropped.
func (b *Buffer) normalize(reading telemetry.Reading) Record {
	supplyLineID := reading.MeterID
	if device, ok := b.source.LookupDevice(reading.MeterID); ok {
		supplyLineID = device.SupplyLineID
	}
	timestamp := reading.Timestamp
	if timestamp.IsZero() {
		timestamp = b.clock.Now().UTC()
	}
	return Record{
		Time:          timestamp,
		SupplyLineID:  supplyLineID,
		FlowRate:      reading.FlowRate,
		TotalVolume:   reading.TotalVolume,
		Pressure:      reading.Pressure,
		ValvePosition: reading.ValvePosition,
		Status:        statusFor(reading.Quality),
	}
}

// statusFor maps reading quality to the historian status column.
func statusFor(quality telemetry.Quality) string {
	switch quality {
	case telemetry.QualityError:
		return "alarm"
	case telemetry.QualityWarning:
		return "warning"
	default:
		return "normal"
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
