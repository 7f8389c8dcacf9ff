package env

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Interface is the machine access layer: named channels that can be read and
// written. Environments route all hardware traffic through an Interface so
// that a simulation and a control system are interchangeable.
type Interface interface {
	Name() string
	GetValues(ctx context.Context, channels []string) (map[string]float64, error)
	SetValues(ctx context.Context, inputs map[string]float64) error
}

// GetValue reads a single channel through an interface.
func GetValue(ctx context.Context, intf Interface, channel string) (float64, error) {
	values, err := intf.GetValues(ctx, []string{channel})
	if err != nil {
		return 0, err
	}
	val, ok := values[channel]
	if !ok {
		return 0, fmt.Errorf("interface %s returned no value for channel %s", intf.Name(), channel)
	}
	return val, nil
}

// SetValue writes a single channel through an interface.
func SetValue(ctx context.Context, intf Interface, channel string, value float64) error {
	return intf.SetValues(ctx, map[string]float64{channel: value})
}

// RecordEntry is one logged interface access.
type RecordEntry struct {
	Timestamp float64            `json:"timestamp"`
	Action    string             `json:"action"`
	Inputs    map[string]float64 `json:"channel_inputs,omitempty"`
	Outputs   map[string]float64 `json:"channel_outputs,omitempty"`
}

// Recorder wraps an Interface and logs every get/set with a timestamp while
// recording is enabled. Recordings are written as JSON.
type Recorder struct {
	Interface

	mu        sync.Mutex
	recording bool
	entries   []RecordEntry
	now       func() time.Time
}

// NewRecorder wraps the given interface.
func NewRecorder(intf Interface) *Recorder {
	return &Recorder{Interface: intf, now: time.Now}
}

// StartRecording clears the log and enables recording.
func (r *Recorder) StartRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.recording = true
}

// StopRecording disables recording and writes the log to filename. No file is
// created when the log is empty.
func (r *Recorder) StopRecording(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	if len(r.entries) == 0 {
		return nil
	}
	if err := r.writeLocked(filename); err != nil {
		return err
	}
	r.entries = nil
	return nil
}

// DumpRecording writes the log to filename without clearing it.
func (r *Recorder) DumpRecording(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	return r.writeLocked(filename)
}

func (r *Recorder) writeLocked(filename string) error {
	out, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	if err := os.WriteFile(filename, out, 0o644); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}
	return nil
}

// Entries returns a copy of the logged accesses.
func (r *Recorder) Entries() []RecordEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordEntry(nil), r.entries...)
}

// GetValues reads channels and logs the outputs when recording.
func (r *Recorder) GetValues(ctx context.Context, channels []string) (map[string]float64, error) {
	outputs, err := r.Interface.GetValues(ctx, channels)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.recording {
		r.entries = append(r.entries, RecordEntry{
			Timestamp: float64(r.now().UnixNano()) / 1e9,
			Action:    "get_values",
			Outputs:   outputs,
		})
	}
	r.mu.Unlock()
	return outputs, nil
}

// SetValues logs the inputs when recording and writes the channels.
func (r *Recorder) SetValues(ctx context.Context, inputs map[string]float64) error {
	r.mu.Lock()
	if r.recording {
		r.entries = append(r.entries, RecordEntry{
			Timestamp: float64(r.now().UnixNano()) / 1e9,
			Action:    "set_values",
			Inputs:    inputs,
		})
	}
	r.mu.Unlock()
	return r.Interface.SetValues(ctx, inputs)
}
