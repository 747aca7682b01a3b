package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/procwire/procwire/internal/cliutil"
	"github.com/procwire/procwire/internal/logmux"
)

const (
	tableTitle          = "Stages"
	logsTitle           = "Logs"
	defaultLogRetention = 500
)

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLogs sets the maximum number of log entries retained per stage.
func WithMaxLogs(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLogs = n
		}
	}
}

// StageStatus is a point-in-time snapshot of one pipeline stage.
type StageStatus struct {
	Stage    string
	PID      int
	Running  bool
	ExitCode int
}

// UI renders a running pipeline: a stage table on top, the selected
// stage's log tail below. Entries arrive on the sink channel; stage
// lifecycle changes arrive through UpdateStatus.
type UI struct {
	app   *tview.Application
	table *tview.Table
	logs  *tview.TextView

	entries chan logmux.Entry

	stages map[string]*stageState
	order  []string

	selected    string
	logsJSON    bool
	logsFocused bool
	maxLogs     int

	mu sync.RWMutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type stageState struct {
	name      string
	pid       int
	firstSeen time.Time
	started   bool
	running   bool
	exitCode  int

	logs []cliutil.LogRecord
}

// New constructs a UI for the named stages, shown in pipeline order.
func New(stages []string, opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	logs := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	logs.SetBorder(true).SetTitle(logsTitle)
	logs.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 3, true).
		AddItem(logs, 0, 2, false)

	ui := &UI{
		app:     app,
		table:   table,
		logs:    logs,
		entries: make(chan logmux.Entry, 256),
		stages:  make(map[string]*stageState),
		order:   append([]string(nil), stages...),
		maxLogs: defaultLogRetention,
		done:    make(chan struct{}),
	}
	for _, name := range stages {
		ui.stages[name] = &stageState{name: name}
	}
	if len(stages) > 0 {
		ui.selected = stages[0]
	}

	for _, opt := range opts {
		opt(ui)
	}

	table.SetSelectionChangedFunc(func(row, column int) {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelection(row)
		ui.renderLogsLocked()
	})

	app.SetRoot(flex, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// EntrySink exposes the channel where log entries should be delivered.
func (u *UI) EntrySink() chan<- logmux.Entry {
	return u.entries
}

// CloseEntries releases the entry channel, allowing the consumer
// goroutine to exit once the backlog drains.
func (u *UI) CloseEntries() {
	u.closeOnce.Do(func() {
		close(u.entries)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// UpdateStatus records a stage lifecycle change and refreshes the table.
func (u *UI) UpdateStatus(st StageStatus) {
	u.mu.Lock()
	state := u.stages[st.Stage]
	if state == nil {
		state = &stageState{name: st.Stage}
		u.stages[st.Stage] = state
		u.order = append(u.order, st.Stage)
	}
	if !state.started {
		state.started = true
		state.firstSeen = time.Now()
	}
	state.pid = st.PID
	state.running = st.Running
	if !st.Running {
		state.exitCode = st.ExitCode
	}
	u.mu.Unlock()

	u.queueRefresh(false)
}

// Run starts the tview application and processes incoming entries until
// Stop is invoked or the context is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEntries(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) consumeEntries(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	draining := false
	ctxDone := ctx.Done()

	for {
		var tick <-chan time.Time
		if !draining {
			tick = ticker.C
		}

		select {
		case <-ctxDone:
			if !draining {
				draining = true
				ticker.Stop()
			}
			ctxDone = nil
		case entry, ok := <-u.entries:
			if !ok {
				return
			}
			if draining {
				continue
			}
			u.applyEntry(entry)
		case <-tick:
			u.queueRefresh(false)
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEnter:
		u.toggleFocus()
		return nil
	case tcell.KeyUp, tcell.KeyDown:
		return event
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			go u.Stop()
			return nil
		case 'j', 'J':
			u.toggleJSON()
			return nil
		}
	}
	return event
}

func (u *UI) toggleFocus() {
	if u.logsFocused {
		u.app.SetFocus(u.table)
	} else {
		u.app.SetFocus(u.logs)
	}
	u.logsFocused = !u.logsFocused
}

func (u *UI) toggleJSON() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.logsJSON = !u.logsJSON
	u.renderLogsLocked()
}

func (u *UI) applyEntry(entry logmux.Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	u.mu.Lock()
	state := u.stages[entry.Stage]
	if state == nil {
		state = &stageState{name: entry.Stage, firstSeen: entry.Timestamp}
		u.stages[entry.Stage] = state
		u.order = append(u.order, entry.Stage)
	}

	state.logs = append(state.logs, cliutil.NewLogRecord(entry))
	if len(state.logs) > u.maxLogs {
		trim := len(state.logs) - u.maxLogs
		state.logs = append([]cliutil.LogRecord(nil), state.logs[trim:]...)
	}

	updateLogs := state.name == u.selected
	u.mu.Unlock()

	u.queueRefresh(updateLogs)
}

func (u *UI) queueRefresh(updateLogs bool) {
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.refreshTableLocked()
		if updateLogs {
			u.renderLogsLocked()
		}
	})
}

func (u *UI) refreshTableLocked() {
	u.table.Clear()

	headers := []string{"STAGE", "PID", "STATE", "EXIT", "AGE"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(0, col, cell)
	}

	for row, name := range u.order {
		state := u.stages[name]
		age := "-"
		if !state.firstSeen.IsZero() {
			age = time.Since(state.firstSeen).Truncate(time.Second).String()
		}
		exit := "-"
		if state.started && !state.running {
			exit = fmt.Sprintf("%d", state.exitCode)
		}
		pid := "-"
		if state.pid > 0 {
			pid = fmt.Sprintf("%d", state.pid)
		}

		values := []string{name, pid, formatStageState(state), exit, age}
		for col, value := range values {
			cell := tview.NewTableCell(value)
			if col == 0 {
				cell = cell.SetReference(name)
			}
			u.table.SetCell(row+1, col, cell)
		}
	}

	u.ensureSelectionLocked()
}

func (u *UI) renderLogsLocked() {
	u.logs.Clear()
	var state *stageState
	if u.selected != "" {
		state = u.stages[u.selected]
	}
	if state == nil {
		u.logs.SetTitle(logsTitle)
		return
	}

	u.logs.SetTitle(fmt.Sprintf("%s (%s)", logsTitle, state.name))

	for _, record := range state.logs {
		if u.logsJSON {
			data, err := json.Marshal(record)
			if err != nil {
				fmt.Fprintf(u.logs, "{\"error\":\"%v\"}\n", err)
				continue
			}
			fmt.Fprintf(u.logs, "%s\n", data)
			continue
		}
		marker := "|"
		if record.Source == logmux.SourceStderr {
			marker = "!"
		}
		fmt.Fprintf(u.logs, "%s%s %s\n", record.Stage, marker, record.Message)
	}
	u.logs.ScrollToEnd()
}

func (u *UI) ensureSelectionLocked() {
	if len(u.order) == 0 {
		u.selected = ""
		u.table.Select(0, 0)
		return
	}

	idx := 0
	if u.selected != "" {
		for i, name := range u.order {
			if name == u.selected {
				idx = i
				break
			}
		}
	} else {
		u.selected = u.order[0]
	}

	u.table.Select(idx+1, 0)
}

func (u *UI) syncSelection(row int) {
	if row <= 0 || row-1 >= len(u.order) {
		return
	}
	u.selected = u.order[row-1]
}

func formatStageState(s *stageState) string {
	switch {
	case !s.started:
		return "Pending"
	case s.running:
		return "Running"
	case s.exitCode == 0:
		return "Exited"
	default:
		return "Failed"
	}
}
