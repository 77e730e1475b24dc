// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package connectivity reports network reachability as a stream of
// transitions. Sources emit an Event only when the state changes.
package connectivity

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the reachability of the remote service.
type State int

const (
	Unknown State = iota
	Online
	Offline
)

func (s State) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Event is one state transition.
type Event struct {
	State State
	At    time.Time
}

// Tracker turns observed states into transitions. The zero value starts
// in Unknown.
type Tracker struct {
	mu   sync.Mutex
	last State
}

// Observe records s and reports whether it differs from the previous
// state. Observing Unknown never produces a transition.
func (t *Tracker) Observe(s State) bool {
	if s == Unknown {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == t.last {
		return false
	}
	t.last = s
	return true
}

// Current returns the last observed state.
func (t *Tracker) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Notifier is a manually driven source, for platforms that push status
// changes and for tests.
type Notifier struct {
	tracker Tracker
	events  chan Event
	once    sync.Once
}

// NewNotifier returns a Notifier whose channel holds up to buffer
// undelivered events.
func NewNotifier(buffer int) *Notifier {
	return &Notifier{events: make(chan Event, buffer)}
}

// Set reports the current state. It blocks when the buffer is full and
// returns false when ctx ends first or s is not a transition.
func (n *Notifier) Set(ctx context.Context, s State) bool {
	if !n.tracker.Observe(s) {
		return false
	}
	select {
	case n.events <- Event{State: s, At: time.Now()}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Events returns the transition stream.
func (n *Notifier) Events() <-chan Event { return n.events }

// Close ends the stream. Set must not be called after Close.
func (n *Notifier) Close() {
	n.once.Do(func() { close(n.events) })
}

// Prober decides reachability with one HTTP request. Any response counts
// as online except 5xx from the probe URL itself; transport errors count
// as offline.
type Prober struct {
	URL    string
	Client *http.Client
}

// Probe performs one reachability check.
func (p Prober) Probe(ctx context.Context) State {
	if p.URL == "" {
		return Offline
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return Offline
	}
	resp, err := client.Do(req)
	if err != nil {
		return Offline
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return Offline
	}
	return Online
}

// Poller probes on a fixed interval and emits transitions.
type Poller struct {
	probe    func(context.Context) State
	interval time.Duration
	log      logrus.FieldLogger
}

// NewPoller returns a Poller calling probe every interval.
func NewPoller(probe func(context.Context) State, interval time.Duration, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Poller{probe: probe, interval: interval, log: log}
}

// Watch probes immediately and then on every tick until ctx ends. The
// returned channel is closed when Watch stops.
func (p *Poller) Watch(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		var tracker Tracker
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			s := p.probe(ctx)
			if ctx.Err() != nil {
				return
			}
			if tracker.Observe(s) {
				p.log.WithField("state", s).Info("connectivity changed")
				select {
				case out <- Event{State: s, At: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
