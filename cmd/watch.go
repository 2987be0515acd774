// watch.go is a minimal single-task live progress view, grounded on the
// teacher's internal/tui DownloadModel (progress.Model driven by an
// event feed) but pared down to one task instead of a full dashboard.
package cmd

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fastdown/fastdown/internal/engine/events"
	"github.com/fastdown/fastdown/internal/task"
)

var (
	stateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	doneStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

var watchCmd = &cobra.Command{
	Use:   "watch [gid]",
	Short: "Watch a single download's progress live",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gid, err := parseGid(args[0])
		if err != nil {
			return err
		}
		m := sharedManager()
		t := m.Get(gid)
		if t == nil {
			return fmt.Errorf("no such download: %s", args[0])
		}

		p := tea.NewProgram(newWatchModel(t))
		_, err = p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

type watchEventMsg events.Event

type watchModel struct {
	t        *task.Task
	bar      progress.Model
	fraction float64
	speed    float64
	state    string
	err      error
	done     bool
}

func newWatchModel(t *task.Task) watchModel {
	return watchModel{
		t:     t,
		bar:   progress.New(progress.WithDefaultGradient()),
		state: stateName(t.State()),
	}
}

func (m watchModel) Init() tea.Cmd {
	return waitForEvent(m.t.Events())
}

func waitForEvent(stream *events.Stream) tea.Cmd {
	return func() tea.Msg {
		ev, ok := stream.Next()
		if !ok {
			return tea.Quit()
		}
		return watchEventMsg(ev)
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case watchEventMsg:
		ev := events.Event(msg)
		switch ev.Kind {
		case events.KindProgress:
			_, total := m.t.Progress()
			if total > 0 {
				m.fraction = float64(m.t.ProgressCovered()) / float64(total)
			}
		case events.KindSpeed:
			m.speed = ev.BytesPerSecond
		case events.KindDone:
			m.done = true
			m.fraction = 1
			return m, tea.Quit
		case events.KindError, events.KindAborted:
			m.err = ev.Err
			return m, tea.Quit
		}
		m.state = stateName(m.t.State())
		return m, waitForEvent(m.t.Events())
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.err != nil {
		return errStyle.Render(fmt.Sprintf("download failed: %v", m.err)) + "\n"
	}
	if m.done {
		return doneStyle.Render("download complete") + "\n"
	}
	return fmt.Sprintf("%s  %s  %.2f MB/s\npress q to detach\n",
		stateStyle.Render(m.state), m.bar.ViewAs(m.fraction), m.speed/1e6)
}
