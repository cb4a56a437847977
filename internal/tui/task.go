package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/writer"
)

// DefaultTaskTimeout bounds one generation command, including follow-up
// calls such as titling and extraction.
const DefaultTaskTimeout = 5 * time.Minute

// taskResult is what a generation command hands back to Update.
type taskResult struct {
	// outcome, when set, is dispatched to the store.
	outcome writer.Outcome
	notice  string

	// review and report switch the view after the task.
	review *writer.Improvement
	report string
	issues []writer.Issue
}

type taskFunc func(ctx context.Context, w *writer.Writer, doc novel.Document) (taskResult, error)

// taskDoneMsg reports the end of the task with the given id.
type taskDoneMsg struct {
	id     int
	label  string
	result taskResult
	err    error
}

// task is a running generation command that can be cancelled.
type task struct {
	id     int
	label  string
	ctx    context.Context
	cancel context.CancelFunc

	// version is the store version the task's snapshot was taken at.
	version uint64

	// exec produces the task's taskDoneMsg.
	exec tea.Cmd
}

func newTask(id int, label string, timeout time.Duration) *task {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &task{id: id, label: label, ctx: ctx, cancel: cancel}
}

// run executes fn off the Update goroutine. The document is a snapshot
// taken when the task started; results are dispatched by Update.
func (t *task) run(source WriterSource, doc novel.Document, fn taskFunc) tea.Cmd {
	return func() tea.Msg {
		defer t.cancel()
		w, err := source(t.ctx)
		if err != nil {
			return taskDoneMsg{id: t.id, label: t.label, err: err}
		}
		result, err := fn(t.ctx, w, doc)
		return taskDoneMsg{id: t.id, label: t.label, result: result, err: err}
	}
}
