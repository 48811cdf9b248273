// Package directory defines the compute directory a lifecycle handler talks
// to: listing instances by label and issuing start/stop actions.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLabel is returned when a label cannot be expressed as a provider
// filter without escaping.
var ErrInvalidLabel = errors.New("invalid label")

// Action is a lifecycle action issued against a single instance.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// Past returns the verb used in completion log lines.
func (a Action) Past() string {
	switch a {
	case ActionStart:
		return "started"
	case ActionStop:
		return "stopped"
	}
	return string(a) + "ed"
}

// ParseAction maps a trigger name onto an Action.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionStart:
		return ActionStart, nil
	case ActionStop:
		return ActionStop, nil
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

// Instance is the read-only view of a compute instance.
type Instance struct {
	Name string
	Zone string
}

// Operation is a pending provider-side state change.
type Operation interface {
	Wait(ctx context.Context) error
}

// Directory lists and drives compute instances.
type Directory interface {
	// Instances returns every instance carrying label, across all zones.
	Instances(ctx context.Context, label string) ([]Instance, error)
	Start(ctx context.Context, zone, name string) (Operation, error)
	Stop(ctx context.Context, zone, name string) (Operation, error)
	Close() error
}

// Apply issues action against the named instance.
func Apply(ctx context.Context, dir Directory, action Action, zone, name string) (Operation, error) {
	switch action {
	case ActionStart:
		return dir.Start(ctx, zone, name)
	case ActionStop:
		return dir.Stop(ctx, zone, name)
	}
	return nil, fmt.Errorf("unsupported action: %q", action)
}

// Selector is a parsed label expression: "key" matches any instance carrying
// the key, "key=value" requires the value too.
type Selector struct {
	Key      string
	Value    string
	HasValue bool
}

func (s Selector) String() string {
	if s.HasValue {
		return s.Key + "=" + s.Value
	}
	return s.Key
}

// ParseLabel splits a label into a Selector. The label is taken verbatim:
// whitespace around the label or the key is rejected rather than trimmed.
// Character-set rules are left to each provider.
func ParseLabel(label string) (Selector, error) {
	if label == "" {
		return Selector{}, fmt.Errorf("%w: empty label", ErrInvalidLabel)
	}
	if strings.TrimSpace(label) != label {
		return Selector{}, fmt.Errorf("%w: surrounding whitespace in %q", ErrInvalidLabel, label)
	}

	key, value, hasValue := strings.Cut(label, "=")
	if key == "" {
		return Selector{}, fmt.Errorf("%w: empty key in %q", ErrInvalidLabel, label)
	}
	if strings.TrimSpace(key) != key {
		return Selector{}, fmt.Errorf("%w: whitespace around key in %q", ErrInvalidLabel, label)
	}

	return Selector{Key: key, Value: value, HasValue: hasValue}, nil
}
