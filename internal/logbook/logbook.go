// Package logbook exports run summaries as control-room logbook entries:
// one XML file per entry under the logbook root, in the element layout the
// logbook cron parser expects.
package logbook

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/pkg/frame"
)

// Entry is one logbook record.
type Entry struct {
	XMLName  xml.Name `xml:"log_entry"`
	Type     string   `xml:"type,attr"`
	Severity string   `xml:"severity"`
	Location string   `xml:"location"`
	Keywords string   `xml:"keywords"`
	Time     string   `xml:"time"`
	ISODate  string   `xml:"isodate"`
	Author   string   `xml:"author"`
	Category string   `xml:"category"`
	Title    string   `xml:"title"`
	MetaInfo string   `xml:"metainfo"`
	Link     string   `xml:"link"`
	File     string   `xml:"file"`
	Text     string   `xml:"text"`
}

// Logbook writes entries under a root directory.
type Logbook struct {
	root string
	// ArchiveRoot is reported in the entry text as the data location.
	ArchiveRoot string

	now func() time.Time
}

// New opens (creating if needed) the logbook root.
func New(root string) (*Logbook, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logbook root %s: %w", root, err)
	}
	return &Logbook{root: root, now: time.Now}, nil
}

// Root returns the logbook root directory.
func (l *Logbook) Root() string { return l.root }

// Publish summarizes a finished run and writes the entry. It returns the
// written filename.
func (l *Logbook) Publish(r *routine.Routine, data *frame.Frame) (string, error) {
	text, err := summarize(r, data, l.ArchiveRoot, l.root)
	if err != nil {
		return "", err
	}

	now := l.now()
	stamp := now.Format("2006-01-02T15:04:05")
	entry := Entry{
		Type:     "LOGENTRY",
		Severity: "NONE",
		Location: "not set",
		Keywords: "none",
		Time:     now.Format("15:04:05"),
		ISODate:  now.Format("2006-01-02"),
		Author:   " ",
		Category: "USERLOG",
		Title:    "Badger",
		MetaInfo: stamp + "-00.xml",
		Link:     stamp + "-00.ps",
		File:     stamp + "-00.png",
		Text:     text,
	}

	out, err := xml.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode logbook entry: %w", err)
	}
	path := filepath.Join(l.root, entry.MetaInfo)
	// Closing newline so the cron job parses the file correctly.
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write logbook entry: %w", err)
	}
	return entry.MetaInfo, nil
}

// summarize renders the run statistics block: objective gain, time cost,
// point count, optimal index and provenance.
func summarize(r *routine.Routine, data *frame.Frame, archiveRoot, logbookRoot string) (string, error) {
	if data == nil || data.Len() == 0 {
		return "", fmt.Errorf("run of routine %s has no data to publish", r.Name)
	}
	objectives := r.VOCS.ObjectiveNames()
	if len(objectives) == 0 {
		return "", fmt.Errorf("routine %s has no objective", r.Name)
	}
	objName := objectives[0]

	objCol := data.Column(objName)
	if objCol == nil {
		return "", fmt.Errorf("run data has no column %s", objName)
	}
	timestamps := data.Column(frame.TimestampColumn)
	if len(timestamps) == 0 {
		return "", fmt.Errorf("run data has no timestamps")
	}

	idxOpt, objOpt, err := r.VOCS.SelectBest(data.ToColumns())
	if err != nil {
		// Multi-objective or infeasible runs still publish, without a gain
		// highlight.
		idxOpt, objOpt = -1, 0
	}

	text := ""
	if idxOpt >= 0 {
		text += fmt.Sprintf("Gain (%s): %.4g -> %.4g\n", objName, objCol[0], objOpt)
	}
	duration := timestamps[len(timestamps)-1] - timestamps[0]
	text += fmt.Sprintf("Time cost: %.2fs\n", duration)
	text += fmt.Sprintf("Points requested: %d\n", data.Len())
	text += fmt.Sprintf("Optimal solution index: %d\n", idxOpt)
	text += fmt.Sprintf("Routine name: %s\n", r.Name)
	text += fmt.Sprintf("Environment name: %s\n", r.Environment.Name)
	text += fmt.Sprintf("Optimization algorithm: %s\n", r.Generator.Name)
	if archiveRoot != "" {
		text += fmt.Sprintf("Data location: %s\n", archiveRoot)
	}
	text += fmt.Sprintf("Log location: %s\n", logbookRoot)
	return text, nil
}
