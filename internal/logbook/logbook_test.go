package logbook

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
	"github.com/badger-opt/badger/pkg/vocs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishedRoutine() *routine.Routine {
	return &routine.Routine{
		Name:        "sphere-min",
		Environment: routine.EnvironmentSpec{Name: "sphere_2d"},
		Generator:   routine.GeneratorSpec{Name: "neldermead"},
		VOCS: &vocs.VOCS{
			Variables:  map[string]vocs.Bounds{"x0": {-1, 1}},
			Objectives: map[string]vocs.ObjectiveRule{"f1": vocs.Minimize},
		},
	}
}

func publishedData(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New()
	for i, val := range []float64{0.9, 0.5, 0.1} {
		require.NoError(t, f.AppendRow(map[string]float64{
			"x0":                  float64(i),
			"f1":                  val,
			frame.TimestampColumn: 1700000000 + 10*float64(i),
		}))
	}
	return f
}

func TestPublish_WritesEntry(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)
	l.ArchiveRoot = "/data/archive"
	l.now = func() time.Time { return time.Date(2026, 8, 25, 14, 30, 0, 0, time.Local) }

	fname, err := l.Publish(publishedRoutine(), publishedData(t))
	require.NoError(t, err)
	assert.Equal(t, "2026-08-25T14:30:00-00.xml", fname)

	raw, err := os.ReadFile(filepath.Join(l.Root(), fname))
	require.NoError(t, err)

	var entry Entry
	require.NoError(t, xml.Unmarshal(raw, &entry))
	assert.Equal(t, "LOGENTRY", entry.Type)
	assert.Equal(t, "USERLOG", entry.Category)
	assert.Equal(t, "Badger", entry.Title)
	assert.Equal(t, "2026-08-25", entry.ISODate)
	assert.Contains(t, entry.Text, "Gain (f1): 0.9 -> 0.1")
	assert.Contains(t, entry.Text, "Time cost: 20.00s")
	assert.Contains(t, entry.Text, "Points requested: 3")
	assert.Contains(t, entry.Text, "Optimal solution index: 2")
	assert.Contains(t, entry.Text, "Routine name: sphere-min")
	assert.Contains(t, entry.Text, "Data location: /data/archive")

	// Closing newline for the logbook parser.
	assert.Equal(t, byte('\n'), raw[len(raw)-1])
}

func TestPublish_NoData(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = l.Publish(publishedRoutine(), frame.New())
	assert.Error(t, err)
}

func TestPublish_MultiObjectiveSkipsGain(t *testing.T) {
	l, err := New(t.TempDir())
	require.NoError(t, err)

	r := publishedRoutine()
	r.VOCS.Objectives["f2"] = vocs.Maximize
	data := publishedData(t)

	fname, err := l.Publish(r, data)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(l.Root(), fname))
	require.NoError(t, err)
	var entry Entry
	require.NoError(t, xml.Unmarshal(raw, &entry))
	assert.NotContains(t, entry.Text, "Gain (")
	assert.Contains(t, entry.Text, "Optimal solution index: -1")
}
