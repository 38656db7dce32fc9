// Package tui renders a live training monitor: per-epoch loss curves and
// best-checkpoint tracking while a fit is running.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/jori-v/fieldlab/internal/train"
)

const historyCapacity = 2000

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	bestStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type doneMsg struct{ err error }

// Monitor is the bubbletea model for a single training run.
type Monitor struct {
	epochs    int
	last      train.EpochUpdate
	trainHist []float64
	testHist  []float64
	bestEpoch int
	bestLoss  float64
	done      bool
	err       error
}

func NewMonitor(epochs int) Monitor {
	return Monitor{
		epochs:    epochs,
		bestLoss:  math.Inf(1),
		trainHist: make([]float64, 0, historyCapacity),
		testHist:  make([]float64, 0, historyCapacity),
	}
}

func (m Monitor) Init() tea.Cmd { return nil }

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case train.EpochUpdate:
		m.last = msg
		m.trainHist = append(m.trainHist, safeLog10(msg.TrainLoss))
		m.testHist = append(m.testHist, safeLog10(msg.TestLoss))
		if msg.Best {
			m.bestEpoch = msg.Epoch
			m.bestLoss = msg.TestLoss
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m Monitor) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("fieldlab train") + "\n")

	if len(m.testHist) > 1 {
		chart := asciigraph.Plot(m.testHist,
			asciigraph.Height(8),
			asciigraph.Width(56),
			asciigraph.Caption("log10 held-out loss"))
		s.WriteString(graphStyle.Render(chart) + "\n\n")
	}

	s.WriteString(labelStyle.Render("Epoch") + valueStyle.Render(fmt.Sprintf("%d / %d", m.last.Epoch, m.epochs)) + "\n")
	s.WriteString(labelStyle.Render("Train loss") + valueStyle.Render(fmt.Sprintf("%.6g", m.last.TrainLoss)) + "\n")
	s.WriteString(labelStyle.Render("Test loss") + valueStyle.Render(fmt.Sprintf("%.6g", m.last.TestLoss)) + "\n")
	if m.bestEpoch > 0 {
		s.WriteString(labelStyle.Render("Best") + bestStyle.Render(fmt.Sprintf("%.6g @ epoch %d", m.bestLoss, m.bestEpoch)) + "\n")
	}

	if m.err != nil {
		s.WriteString("\n" + errStyle.Render("error: "+m.err.Error()) + "\n")
	}
	s.WriteString(helpStyle.Render("q quit"))
	return s.String()
}

func safeLog10(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Log10(v)
}

// Run drives the monitor while fit executes in the background. fit
// receives an observer to call after each epoch; quitting the monitor
// cancels the context handed to fit, and fit's error is surfaced once
// the program exits.
func Run(ctx context.Context, epochs int, fit func(ctx context.Context, observer func(train.EpochUpdate)) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewMonitor(epochs))

	errCh := make(chan error, 1)
	go func() {
		err := fit(ctx, func(u train.EpochUpdate) { p.Send(u) })
		errCh <- err
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-errCh
		return err
	}
	cancel()
	return <-errCh
}
