package commands

import (
	"fmt"
	"strings"

	"github.com/badger-opt/badger/internal/routine"
	"github.com/badger-opt/badger/internal/runner"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// monitorRun drives the live TUI until the run ends and returns the run
// loop's error.
func monitorRun(cmd *cobra.Command, run *runner.Runner, r *routine.Routine) error {
	done := make(chan error, 1)
	go func() { done <- run.Run(cmd.Context()) }()

	m := newMonitorModel(run, r.Name, done)
	p := tea.NewProgram(m, tea.WithOutput(cmd.OutOrStdout()), tea.WithInput(cmd.InOrStdin()))
	final, err := p.Run()
	if err != nil {
		run.Stop()
		<-done
		return err
	}
	return final.(monitorModel).runErr
}

type eventMsg runner.Event

type doneMsg struct{ err error }

type monitorModel struct {
	run  *runner.Runner
	name string
	done <-chan error
	spin spinner.Model

	status string
	reason string
	steps  int
	last   *runner.Solution
	best   *runner.Solution
	errs   []string

	finished bool
	runErr   error
}

func newMonitorModel(run *runner.Runner, name string, done <-chan error) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styleHeader
	return monitorModel{
		run:    run,
		name:   name,
		done:   done,
		spin:   s,
		status: "starting",
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForEvent())
}

// waitForEvent blocks on the runner's event stream; once it closes the run
// loop's final error is collected.
func (m monitorModel) waitForEvent() tea.Cmd {
	events := m.run.Events()
	done := m.done
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return doneMsg{err: <-done}
		}
		return eventMsg(ev)
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.finished {
				return m, tea.Quit
			}
			m.status = "stopping"
			m.run.Stop()
		case "p":
			m.run.Pause()
		case "r":
			m.run.Resume()
		}
		return m, nil

	case eventMsg:
		m.apply(runner.Event(msg))
		return m, m.waitForEvent()

	case doneMsg:
		m.finished = true
		m.runErr = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *monitorModel) apply(ev runner.Event) {
	switch ev.Type {
	case runner.EventStart:
		m.status = "running"
	case runner.EventStep:
		m.steps++
		m.last = ev.Solution
		if ev.Solution.IsOptimal {
			m.best = ev.Solution
		}
	case runner.EventPaused:
		m.status = "paused"
	case runner.EventResumed:
		m.status = "running"
	case runner.EventCriticalPause:
		m.status = "paused"
		m.reason = ev.Reason
	case runner.EventEnd:
		m.status = "finished"
	case runner.EventError:
		m.errs = append(m.errs, ev.Err.Error())
	}
}

func (m monitorModel) View() string {
	var b strings.Builder

	b.WriteString(styleHeader.Render("Badger run: "+m.name) + "\n\n")

	indicator := m.spin.View()
	if m.finished || m.status == "finished" {
		indicator = styleSuccess.Render("●")
	}
	fmt.Fprintf(&b, "%s %s  %s\n", indicator, m.status, styleMuted.Render(fmt.Sprintf("%d evaluation(s)", m.steps)))

	if m.reason != "" {
		b.WriteString(styleError.Render("critical constraint violated: "+m.reason) + "\n")
	}
	if m.last != nil {
		b.WriteString("\n" + styleBold.Render("Last") + "  " + formatSolution(m.last) + "\n")
	}
	if m.best != nil {
		b.WriteString(styleBold.Render("Best") + "  " + styleSuccess.Render(formatSolution(m.best)) + "\n")
	}
	for _, e := range m.errs {
		b.WriteString(styleError.Render("error: "+e) + "\n")
	}

	b.WriteString("\n" + styleMuted.Render("p pause  r resume  q stop") + "\n")
	return b.String()
}
