// Package poll drives the device sessions on a fixed cadence: every tick it
// pushes keep-alives, samples whatever both sessions currently know, and
// fans the sample out to the sinks.
package poll

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imaround-world/ifit-zone-log/internal/telemetry"
)

// DefaultInterval is the tick every piece of timing in the sessions is tuned
// for. Faster polling makes consoles drop the session.
const DefaultInterval = time.Second

// Console is the treadmill session as the poll loop sees it.
type Console interface {
	Update()
	Reading() telemetry.Reading
	Close()
}

// Strap is the heart rate session as the poll loop sees it.
type Strap interface {
	Update()
	HeartRate() int
	Close()
}

// Sink consumes one sample per tick. Sinks must not block the tick.
type Sink interface {
	WriteSample(telemetry.Sample) error
}

// Poller runs the loop. Console and Strap stay nil when the device was not
// discovered; the loop still ticks and emits rows for whatever is present.
type Poller struct {
	Console Console
	Strap   Strap
	Sinks   []Sink

	interval  time.Duration
	closeOnce sync.Once
}

func New(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{interval: interval}
}

// Run ticks until ctx is cancelled, then releases both sessions. Sessions
// are released no matter how Run exits.
func (p *Poller) Run(ctx context.Context) {
	defer p.Close()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping...")
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick runs one poll cycle. Exactly one sample goes to every sink per tick,
// whether or not any device produced fresh data; the timestamp is captured
// at emission, after the updates, which can block on a strap redial.
func (p *Poller) tick() {
	var s telemetry.Sample
	if p.Console != nil {
		p.Console.Update()
		r := p.Console.Reading()
		s.Speed, s.Incline, s.Distance = &r.Speed, &r.Incline, &r.Distance
	}
	if p.Strap != nil {
		p.Strap.Update()
		hr := p.Strap.HeartRate()
		s.HeartRate = &hr
	}
	s.Timestamp = time.Now()
	log.Info(s.Summary())
	for _, sink := range p.Sinks {
		if err := sink.WriteSample(s); err != nil {
			log.WithError(err).Error("Could not write sample")
		}
	}
}

// Close releases both sessions. Idempotent: each session closes exactly
// once no matter how many shutdown paths reach here.
func (p *Poller) Close() {
	p.closeOnce.Do(func() {
		if p.Console != nil {
			p.Console.Close()
		}
		if p.Strap != nil {
			p.Strap.Close()
		}
	})
}
