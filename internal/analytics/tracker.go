// Package analytics provides fire-and-forget event sinks.
package analytics

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker records a named user action. Implementations must not block and
// must swallow their own failures.
type Tracker interface {
	Track(name string, params map[string]any)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Track(string, map[string]any) {}

// Logger writes events to the standard logger.
type Logger struct {
	Prefix string
}

func (l Logger) Track(name string, params map[string]any) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(toString(params[k]))
	}
	log.Printf("%sevent %s%s", l.Prefix, name, b.String())
}

// Prometheus counts events per name.
type Prometheus struct {
	events *prometheus.CounterVec
}

// NewPrometheus registers the event counter on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nesturechat",
		Name:      "widget_events_total",
		Help:      "User-initiated widget actions by event name.",
	}, []string{"event"})
	if err := reg.Register(events); err != nil {
		return nil, err
	}
	return &Prometheus{events: events}, nil
}

func (p *Prometheus) Track(name string, _ map[string]any) {
	p.events.WithLabelValues(name).Inc()
}

// Multi fans an event out to every tracker.
type Multi []Tracker

func (m Multi) Track(name string, params map[string]any) {
	for _, t := range m {
		if t == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("analytics tracker panic on %s: %v", name, r)
				}
			}()
			t.Track(name, params)
		}()
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
