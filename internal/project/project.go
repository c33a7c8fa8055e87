// Package project binds item, event and configuration variants into the
// production rigs the tracker serves. Each rig registers itself from init.
package project

import (
	"fmt"
	"sort"
	"sync"

	"production-tracker-backend/internal/model"
)

// Project is one kind of production rig.
type Project struct {
	Name     string
	Title    string
	ItemKind model.ItemKind
	// EventKind and ConfigKind must be registered with the model package.
	// ConfigKind is empty for rigs without configuration.
	EventKind  string
	ConfigKind string
}

// HasConfiguration reports whether the project stores per-SKU settings.
func (p Project) HasConfiguration() bool {
	return p.ConfigKind != ""
}

var (
	mu       sync.RWMutex
	projects = map[string]Project{}
)

// Register adds p to the set of served projects. It panics on duplicates or
// unregistered variant kinds.
func Register(p Project) {
	if _, err := model.NewEventDetails(p.EventKind); err != nil {
		panic(fmt.Sprintf("project %s: %v", p.Name, err))
	}
	if p.HasConfiguration() {
		if _, err := model.NewConfigSettings(p.ConfigKind); err != nil {
			panic(fmt.Sprintf("project %s: %v", p.Name, err))
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if _, dup := projects[p.Name]; dup {
		panic(fmt.Sprintf("project %s registered twice", p.Name))
	}
	projects[p.Name] = p
}

// Lookup returns the project called name.
func Lookup(name string) (Project, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := projects[name]
	return p, ok
}

// All returns every project ordered by name.
func All() []Project {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
