package commands

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ineyio/imagegate"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of the admission state",
	Long: `Show active slots and today's usage, updated as they change. Stores
that publish changes (memory, badger, redis, postgres) update immediately;
the view also refreshes every poll interval. Press q to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withQueue(cmd, func(ctx context.Context, q *imagegate.Queue) error {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			changes := make(chan struct{}, 1)
			unsubscribe := q.Subscribe(func(int64) {
				select {
				case changes <- struct{}{}:
				default:
				}
			})
			defer unsubscribe()

			m := newWatchModel(ctx, q, changes)
			_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchModel is the Bubble Tea model for the watch view.
type watchModel struct {
	ctx      context.Context
	queue    *imagegate.Queue
	changes  <-chan struct{}
	interval time.Duration
	status   imagegate.Status
	updated  time.Time
}

type statusMsg struct {
	status imagegate.Status
	at     time.Time
}

type changeMsg struct{}

type tickMsg time.Time

func newWatchModel(ctx context.Context, q *imagegate.Queue, changes <-chan struct{}) watchModel {
	return watchModel{
		ctx:      ctx,
		queue:    q,
		changes:  changes,
		interval: q.Config().PollInterval,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), waitForChange(m.changes), tick(m.interval))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		switch typed.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case statusMsg:
		m.status = typed.status
		m.updated = typed.at
		return m, nil
	case changeMsg:
		return m, tea.Batch(m.fetch(), waitForChange(m.changes))
	case tickMsg:
		return m, tea.Batch(m.fetch(), tick(m.interval))
	}
	return m, nil
}

func (m watchModel) View() string {
	footer := freeStyle.Render("updated " + m.updated.Format("15:04:05") + " · q to quit")
	return lipgloss.JoinVertical(lipgloss.Left, renderStatus(m.status), footer) + "\n"
}

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		return statusMsg{status: m.queue.Status(m.ctx), at: time.Now()}
	}
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changeMsg{}
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
