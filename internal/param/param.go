// Package param holds the named float parameters that modules read at init
// and, with online tuning, on every step.
package param

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("parameter not found")
	ErrInvalidName = errors.New("invalid parameter name")
)

// Values maps group -> parameter name -> value.
type Values map[string]map[string]float32

// Table is the process-wide parameter table. Parameters exist once their
// group is registered; Set and file loads only change registered names.
type Table struct {
	mu       sync.RWMutex
	groups   map[string]map[string]float32
	defaults map[string]map[string]float32
	logger   *zap.Logger
}

// NewTable creates an empty table.
func NewTable(logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Table{
		groups:   make(map[string]map[string]float32),
		defaults: make(map[string]map[string]float32),
		logger:   logger.Named("param"),
	}
}

// Register declares group with its default values. Names already present
// keep their current value, so registering twice is harmless.
func (t *Table) Register(group string, defaults map[string]float32) error {
	if group == "" {
		return fmt.Errorf("failed to register group: %w", ErrInvalidName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.groups[group]
	if !ok {
		g = make(map[string]float32, len(defaults))
		t.groups[group] = g
		t.defaults[group] = make(map[string]float32, len(defaults))
	}
	d := t.defaults[group]
	for name, v := range defaults {
		if name == "" {
			return fmt.Errorf("failed to register %s: %w", group, ErrInvalidName)
		}
		if _, ok := g[name]; !ok {
			g[name] = v
			d[name] = v
		}
	}

	t.logger.Debug("parameter group registered", zap.String("group", group), zap.Int("params", len(g)))
	return nil
}

// GetFloat returns the value of group.name.
func (t *Table) GetFloat(group, name string) (float32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.groups[group][name]
	if !ok {
		return 0, fmt.Errorf("%s.%s: %w", group, name, ErrNotFound)
	}
	return v, nil
}

// Set changes a registered parameter.
func (t *Table) Set(group, name string, v float32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.groups[group]
	if !ok {
		return fmt.Errorf("%s.%s: %w", group, name, ErrNotFound)
	}
	if _, ok := g[name]; !ok {
		return fmt.Errorf("%s.%s: %w", group, name, ErrNotFound)
	}
	g[name] = v
	return nil
}

// Reset restores every parameter of group to its registered default.
func (t *Table) Reset(group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.groups[group]
	if !ok {
		return fmt.Errorf("group %s: %w", group, ErrNotFound)
	}
	for name, v := range t.defaults[group] {
		g[name] = v
	}
	return nil
}

// Apply sets every registered parameter named in values and returns how
// many were changed. Unknown names are skipped.
func (t *Table) Apply(values Values) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for group, params := range values {
		g, ok := t.groups[group]
		if !ok {
			t.logger.Warn("skipping unknown parameter group", zap.String("group", group))
			continue
		}
		for name, v := range params {
			if _, ok := g[name]; !ok {
				t.logger.Warn("skipping unknown parameter", zap.String("group", group), zap.String("name", name))
				continue
			}
			g[name] = v
			applied++
		}
	}
	return applied
}

// Group returns a copy of one group.
func (t *Table) Group(group string) (map[string]float32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	g, ok := t.groups[group]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", group, ErrNotFound)
	}

	out := make(map[string]float32, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out, nil
}

// Groups returns the registered group names in order.
func (t *Table) Groups() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.groups))
	for name := range t.groups {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot copies the whole table.
func (t *Table) Snapshot() Values {
	out := make(Values)
	for _, group := range t.Groups() {
		g, err := t.Group(group)
		if err != nil {
			continue
		}
		out[group] = g
	}
	return out
}
