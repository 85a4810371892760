package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/peterbitar/newsfeed-pipeline/internal/pipeline"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Live-refreshing health dashboard",
		Long:  `Launches a terminal dashboard that polls per-status article counts every few seconds. Press q to quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

type statusTickMsg time.Time

type statusModel struct {
	orch    *pipeline.Orchestrator
	counts  map[string]int
	err     error
	width   int
	quitting bool
}

func pollStatus(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return statusTickMsg(t) })
}

func (m statusModel) Init() tea.Cmd {
	return pollStatus(3 * time.Second)
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case statusTickMsg:
		counts, err := m.orch.Health(context.Background())
		m.counts, m.err = counts, err
		return m, pollStatus(3 * time.Second)
	}
	return m, nil
}

func (m statusModel) View() string {
	if m.quitting {
		return ""
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("105"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("71"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	b := titleStyle.Render("newsfeed-pipeline status") + "\n\n"
	if m.err != nil {
		b += errStyle.Render(fmt.Sprintf("error: %v", m.err)) + "\n"
		return b
	}

	statuses := make([]string, 0, len(m.counts))
	for s := range m.counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	for _, s := range statuses {
		b += fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-20s", s)), valueStyle.Render(fmt.Sprintf("%d", m.counts[s])))
	}
	b += "\n" + labelStyle.Render("press q to quit")
	return b
}

func runStatus(ctx context.Context) error {
	orch, st, err := buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := orch.Health(ctx)
	if err != nil {
		return err
	}

	p := tea.NewProgram(statusModel{orch: orch, counts: counts})
	_, err = p.Run()
	return err
}
