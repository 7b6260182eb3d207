package plugin

import (
	"encoding/json"
	"errors"
	"time"
)

// State is the outcome of loading one plugin.
type State int

// Plugin states.
const (
	// StateLoaded - Setup ran to completion.
	StateLoaded State = iota

	// StateSkipped - The plugin targets another API version.
	StateSkipped

	// StateFailed - Fetching or setup failed. Registrations made before the
	// failure remain merged.
	StateFailed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Source tells which loader handled a plugin.
type Source int

// Plugin sources.
const (
	SourceLocal Source = iota
	SourceExternal
)

// String returns a string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceExternal:
		return "external"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status records how one plugin fared during a load cycle.
type Status struct {
	ID         string
	Name       string
	Version    string
	APIVersion string
	Source     Source

	// URL is set for external plugins.
	URL string

	State State
	Err   error

	// Allowed is the effective capability set.
	Allowed CapabilitySet

	Merge    MergeResult
	Duration time.Duration
}

// MarshalJSON renders the error as a string and the capability set as a list.
func (s Status) MarshalJSON() ([]byte, error) {
	var errText string
	if s.Err != nil {
		errText = s.Err.Error()
	}
	return json.Marshal(struct {
		ID         string       `json:"id,omitempty"`
		Name       string       `json:"name,omitempty"`
		Version    string       `json:"version,omitempty"`
		APIVersion string       `json:"apiVersion,omitempty"`
		Source     Source       `json:"source"`
		URL        string       `json:"url,omitempty"`
		State      State        `json:"state"`
		Error      string       `json:"error,omitempty"`
		Allowed    []Capability `json:"allowed"`
		Merge      MergeResult  `json:"merge"`
		DurationMS int64        `json:"durationMs"`
	}{
		ID:         s.ID,
		Name:       s.Name,
		Version:    s.Version,
		APIVersion: s.APIVersion,
		Source:     s.Source,
		URL:        s.URL,
		State:      s.State,
		Error:      errText,
		Allowed:    s.Allowed.List(),
		Merge:      s.Merge,
		DurationMS: s.Duration.Milliseconds(),
	})
}

// Report is the result of a load cycle.
type Report struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"-"`
	Plugins  []Status      `json:"plugins"`
}

// Count returns the number of plugins in state s.
func (r Report) Count(s State) int {
	n := 0
	for _, p := range r.Plugins {
		if p.State == s {
			n++
		}
	}
	return n
}

// Lookup returns the status recorded for a plugin ID.
func (r Report) Lookup(id string) (Status, bool) {
	for _, p := range r.Plugins {
		if p.ID == id {
			return p, true
		}
	}
	return Status{}, false
}

// Err joins every plugin failure. It is informational: a failed plugin never
// fails the load cycle.
func (r Report) Err() error {
	var errs []error
	for _, p := range r.Plugins {
		if p.State == StateFailed && p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errors.Join(errs...)
}

func (r *Report) merge(other Report) {
	if r.Started.IsZero() {
		r.Started = other.Started
	}
	r.Plugins = append(r.Plugins, other.Plugins...)
}
