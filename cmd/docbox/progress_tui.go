package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docbox/internal/client"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/spf13/cobra"
)

const refreshEvery = 120 * time.Millisecond

// transferRow is one line of the live transfer view.
type transferRow struct {
	Label   string
	Status  transfer.Status
	Phase   transfer.Phase
	Percent int
	Detail  string
}

// rowsFor snapshots the items ids of q on every call.
func rowsFor[P, R any](q *transfer.Queue[P, R], ids []string, label func(transfer.Item[P, R]) string, detail func(transfer.Item[P, R]) string) func() []transferRow {
	return func() []transferRow {
		rows := make([]transferRow, 0, len(ids))
		for _, id := range ids {
			it, ok := q.Get(id)
			if !ok {
				continue
			}
			row := transferRow{
				Label:   label(it),
				Status:  it.Status,
				Phase:   it.Phase,
				Percent: it.Progress,
				Detail:  it.Error,
			}
			if row.Detail == "" && detail != nil {
				row.Detail = detail(it)
			}
			rows = append(rows, row)
		}
		return rows
	}
}

type transferTickMsg time.Time
type transfersDoneMsg struct{}

type transferModel struct {
	title       string
	rows        func() []transferRow
	snapshot    []transferRow
	bar         progress.Model
	finished    bool
	interrupted bool
}

func newTransferModel(title string, rows func() []transferRow) transferModel {
	return transferModel{
		title:    title,
		rows:     rows,
		snapshot: rows(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(32)),
	}
}

func transferTick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return transferTickMsg(t) })
}

func (m transferModel) Init() tea.Cmd {
	return transferTick()
}

func (m transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.interrupted = true
			return m, tea.Quit
		}
	case transferTickMsg:
		m.snapshot = m.rows()
		return m, transferTick()
	case transfersDoneMsg:
		m.snapshot = m.rows()
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m transferModel) View() string {
	var b strings.Builder
	b.WriteString(cyan.Bold(true).Render(m.title))
	b.WriteString("\n\n")
	for _, r := range m.snapshot {
		fmt.Fprintf(&b, "%s %s %s\n", m.bar.ViewAs(float64(r.Percent)/100), statusLabel(r), r.Label)
		if r.Detail != "" {
			fmt.Fprintf(&b, "  %s\n", gray.Render(r.Detail))
		}
	}
	if !m.finished {
		b.WriteString("\n")
		b.WriteString(gray.Render("Press 'q' or 'Ctrl+C' to stop."))
		b.WriteString("\n")
	}
	return b.String()
}

func statusLabel(r transferRow) string {
	label := fmt.Sprintf("%-11s", r.Status.String())
	if r.Status == transfer.Active && r.Phase != transfer.PhaseNone {
		label = fmt.Sprintf("%-11s", string(r.Phase))
	}
	switch r.Status {
	case transfer.Completed:
		return green.Render(label)
	case transfer.Error:
		return red.Render(label)
	case transfer.Cancelled:
		return yellow.Render(label)
	}
	return lightGray.Render(label)
}

// runTransfers drains the queues, rendering rows live on a terminal and as a summary
// otherwise. It fails when the user interrupts or any row ends in error.
func runTransfers(cmd *cobra.Command, c *client.Client, title string, rows func() []transferRow) ([]transferRow, error) {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var runErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		runErr = c.RunWorkers(ctx, true)
	}()

	out := cmd.OutOrStdout()
	interrupted := false

	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		p := tea.NewProgram(newTransferModel(title, rows), tea.WithOutput(out), tea.WithContext(ctx))
		go func() {
			<-finished
			p.Send(transfersDoneMsg{})
		}()

		final, err := p.Run()
		if m, ok := final.(transferModel); ok && m.interrupted {
			interrupted = true
		}
		cancel()
		<-finished
		if err != nil && !interrupted && runErr == nil {
			return nil, fmt.Errorf("transfer view: %w", err)
		}
	} else {
		<-finished
		printRows(out, title, rows())
	}

	if interrupted || (runErr != nil && cmd.Context().Err() != nil) {
		return rows(), fmt.Errorf("interrupted")
	}
	if runErr != nil && ctx.Err() == nil {
		return rows(), runErr
	}

	final := rows()
	failed := 0
	for _, r := range final {
		if r.Status == transfer.Error {
			failed++
		}
	}
	if failed > 0 {
		return final, fmt.Errorf("%d of %d transfers failed", failed, len(final))
	}
	return final, nil
}

func printRows(w io.Writer, title string, rows []transferRow) {
	fmt.Fprintln(w, cyan.Bold(true).Render(title))
	for _, r := range rows {
		fmt.Fprintf(w, "%s %3d%% %s\n", statusLabel(r), r.Percent, r.Label)
		if r.Detail != "" {
			fmt.Fprintf(w, "  %s\n", gray.Render(r.Detail))
		}
	}
}
