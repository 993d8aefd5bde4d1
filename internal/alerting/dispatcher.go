package alerting

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/xilian/diagnostics-service/internal/models"
)

const defaultDispatchBuffer = 256

// Dispatcher routes stored high-severity anomalies to a Notifier from a
// bounded buffer. Dispatch never blocks the caller: when the buffer is full
// the notification is dropped and counted, because holding up telemetry
// inserts is worse than losing an alert.
type Dispatcher struct {
	notifier Notifier
	queue    chan models.AnomalyRecord
	minLevel models.Severity

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	dropped   int64
	delivered int64
	failed    int64
}

// NewDispatcher creates a dispatcher that notifies for records at or above
// minLevel (high by default)
func NewDispatcher(notifier Notifier, minLevel models.Severity) *Dispatcher {
	if !minLevel.Valid() {
		minLevel = models.SeverityHigh
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan models.AnomalyRecord, defaultDispatchBuffer),
		minLevel: minLevel,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// severityRank orders severities for the minimum-level check
func severityRank(s models.Severity) int {
	switch s {
	case models.SeverityLow:
		return 1
	case models.SeverityMedium:
		return 2
	case models.SeverityHigh:
		return 3
	case models.SeverityCritical:
		return 4
	}
	return 0
}

// Start launches the dispatch worker
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop drains the queue and waits for in-flight notifications
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
	d.cancel()
}

// Enqueue queues a notification if the record meets the minimum severity.
// Never blocks.
func (d *Dispatcher) Enqueue(record models.AnomalyRecord) {
	if severityRank(record.Severity) < severityRank(d.minLevel) {
		return
	}
	select {
	case d.queue <- record:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		log.Printf("alert queue full, dropped notification for detection %s", record.DetectionID)
	}
}

// Stats returns delivered/failed/dropped notification counts
func (d *Dispatcher) Stats() (delivered, failed, dropped int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered, d.failed, d.dropped
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for record := range d.queue {
		ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
		err := d.notifier.Notify(ctx, record)
		cancel()

		d.mu.Lock()
		if err != nil {
			d.failed++
		} else {
			d.delivered++
		}
		d.mu.Unlock()

		if err != nil {
			log.Printf("alert delivery failed for detection %s: %v", record.DetectionID, err)
		}
	}
}
