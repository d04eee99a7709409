package app

import (
	"context"
	"strings"
	"time"

	"github.com/louisbranch/socialsync/internal/services/social/domain"
)

const defaultFrameInterval = 100 * time.Millisecond

// Worker is the per-frame entry point the loop drives.
type Worker interface {
	DoWork() []domain.Event
}

// Loop calls DoWork on a fixed cadence and hands published events to a sink.
type Loop struct {
	worker   Worker
	interval time.Duration
	sink     func(domain.Event)
}

// NewLoop builds a frame loop. A nil sink discards events.
func NewLoop(worker Worker, interval time.Duration, sink func(domain.Event)) *Loop {
	if interval <= 0 {
		interval = defaultFrameInterval
	}
	if sink == nil {
		sink = func(domain.Event) {}
	}
	return &Loop{worker: worker, interval: interval, sink: sink}
}

// Run drives frames until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Frame()
		}
	}
}

// Frame runs one DoWork and publishes its events.
func (l *Loop) Frame() int {
	events := l.worker.DoWork()
	for _, event := range events {
		l.sink(event)
	}
	return len(events)
}

// EventLogger returns a sink that logs each event through logf.
func EventLogger(logf func(string, ...any)) func(domain.Event) {
	return func(event domain.Event) {
		logf("%s", FormatEvent(event))
	}
}

// FormatEvent renders one event as a single log line.
func FormatEvent(event domain.Event) string {
	var b strings.Builder
	b.WriteString(event.Type.String())
	b.WriteString(" local_user=")
	b.WriteString(event.LocalUserID)
	if event.GroupID != "" {
		b.WriteString(" group=")
		b.WriteString(event.GroupID)
	}
	if len(event.AffectedUserIDs) > 0 {
		b.WriteString(" users=")
		b.WriteString(strings.Join(event.AffectedUserIDs, ","))
	}
	if event.Err != nil {
		b.WriteString(" err=")
		b.WriteString(event.Err.Error())
	}
	return b.String()
}
