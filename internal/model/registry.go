package model

import (
	"fmt"
	"sort"
	"sync"
)

// EventDetails is the subtype payload of an Event. Any JSON-serialisable struct pointer works.
// Details implementing LogSource take part in log length synchronisation.
type EventDetails interface{}

// ConfigSettings is the subtype payload of a Configuration. Each kind is bound to one production step.
type ConfigSettings interface {
	ProductionStep() ProductionStep
}

// LogField is one time-series array of an Event subtype.
type LogField struct {
	Name  string
	Label string
	Data  []float64
}

// LogSource is implemented by event details that record log arrays alongside the
// event's timepoints.
type LogSource interface {
	LogFields() []LogField
}

type registry struct {
	mu      sync.RWMutex
	events  map[string]func() EventDetails
	configs map[string]func() ConfigSettings
}

var kinds = &registry{
	events:  map[string]func() EventDetails{},
	configs: map[string]func() ConfigSettings{},
}

// RegisterEventKind binds an event discriminator to a details constructor.
// It panics on duplicate registration.
func RegisterEventKind(kind string, newDetails func() EventDetails) {
	kinds.mu.Lock()
	defer kinds.mu.Unlock()
	if _, dup := kinds.events[kind]; dup {
		panic(fmt.Sprintf("model: event kind %q registered twice", kind))
	}
	kinds.events[kind] = newDetails
}

// RegisterConfigKind binds a configuration discriminator to a settings constructor.
// The settings must name a valid production step. It panics on misuse.
func RegisterConfigKind(kind string, newSettings func() ConfigSettings) {
	if step := newSettings().ProductionStep(); !step.Valid() {
		panic(fmt.Sprintf("model: configuration kind %q has an invalid production step %q", kind, step))
	}
	kinds.mu.Lock()
	defer kinds.mu.Unlock()
	if _, dup := kinds.configs[kind]; dup {
		panic(fmt.Sprintf("model: configuration kind %q registered twice", kind))
	}
	kinds.configs[kind] = newSettings
}

// NewEventDetails returns an empty details value for kind.
func NewEventDetails(kind string) (EventDetails, error) {
	kinds.mu.RLock()
	f, ok := kinds.events[kind]
	kinds.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	return f(), nil
}

// NewConfigSettings returns an empty settings value for kind.
func NewConfigSettings(kind string) (ConfigSettings, error) {
	kinds.mu.RLock()
	f, ok := kinds.configs[kind]
	kinds.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown configuration kind %q", kind)
	}
	return f(), nil
}

// EventKinds lists registered event kinds in sorted order.
func EventKinds() []string {
	kinds.mu.RLock()
	defer kinds.mu.RUnlock()
	out := make([]string, 0, len(kinds.events))
	for k := range kinds.events {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ConfigKinds lists registered configuration kinds in sorted order.
func ConfigKinds() []string {
	kinds.mu.RLock()
	defer kinds.mu.RUnlock()
	out := make([]string, 0, len(kinds.configs))
	for k := range kinds.configs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
