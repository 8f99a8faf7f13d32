package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/initializ/stepforge/pipeline"
)

// ErrInterrupted is returned when the user quits before the pipeline ends.
var ErrInterrupted = errors.New("interrupted")

// stepDoneMsg reports the outcome of pulling one step from the traversal.
type stepDoneMsg struct {
	index int
	err   error
	done  bool
}

// ProgressModel is a bubbletea model that drives a pipeline traversal one
// step per message and shows each step's state.
type ProgressModel struct {
	styles  *StyleSet
	steps   []string
	spinner spinner.Model

	// pullMu serialises next and stop, which must not run concurrently.
	pullMu *sync.Mutex
	next   func() (*pipeline.Bag, error, bool)
	stop   func()
	cancel context.CancelFunc

	completed int
	failed    int
	err       error
	done      bool
}

// NewProgressModel prepares a traversal of p. The traversal does not start
// until the program runs the model.
func NewProgressModel(ctx context.Context, p *pipeline.Pipeline, styles *StyleSet) ProgressModel {
	ctx, cancel := context.WithCancel(ctx)
	next, stop := iter.Pull2(p.Iterate(ctx))
	return ProgressModel{
		styles:  styles,
		steps:   p.Steps(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Title)),
		pullMu:  &sync.Mutex{},
		next:    next,
		stop:    stop,
		cancel:  cancel,
		failed:  -1,
	}
}

// Init starts the spinner and pulls the first step.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.advance())
}

func (m ProgressModel) advance() tea.Cmd {
	mu, next := m.pullMu, m.next
	return func() tea.Msg {
		mu.Lock()
		bag, err, ok := next()
		mu.Unlock()
		if !ok {
			return stepDoneMsg{done: true}
		}
		return stepDoneMsg{index: bag.StepIndex(), err: err}
	}
}

// Update handles step results, spinner ticks and quit keys.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The pull in flight observes the cancelled context at the next
			// step boundary and reports back through stepDoneMsg.
			if m.err == nil {
				m.err = ErrInterrupted
			}
			m.cancel()
		}
		return m, nil

	case stepDoneMsg:
		switch {
		case msg.done:
			m.done = true
		case msg.err != nil:
			if !errors.Is(m.err, ErrInterrupted) {
				m.err = msg.err
			}
			m.failed = m.completed
		case m.err != nil:
			// Interrupted after a step finished; do not pull another one.
			m.completed = msg.index + 1
		default:
			m.completed = msg.index + 1
			return m, m.advance()
		}
		m.release()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders one line per step.
func (m ProgressModel) View() string {
	var b strings.Builder
	total := len(m.steps)
	for i, step := range m.steps {
		pos := fmt.Sprintf("%d/%d", i+1, total)
		switch {
		case i < m.completed:
			b.WriteString(m.styles.StepBadgeComplete.Render(pos) + " " + m.styles.PrimaryTxt.Render(step))
		case i == m.failed:
			b.WriteString(m.styles.StepBadgeFailed.Render(pos) + " " + m.styles.ErrorTxt.Render(step))
		case i == m.completed && !m.finished():
			b.WriteString(m.styles.StepBadgeActive.Render(pos) + " " + m.spinner.View() + m.styles.PrimaryTxt.Render(step))
		default:
			b.WriteString(m.styles.StepBadgePending.Render(pos) + " " + m.styles.DimTxt.Render(step))
		}
		b.WriteByte('\n')
	}
	if m.err != nil {
		b.WriteString(m.styles.ErrorTxt.Render(m.err.Error()))
		b.WriteByte('\n')
	}
	return b.String()
}

// release cancels the traversal and frees the pipeline. A pull still in
// flight returns at its next step boundary before stop runs.
func (m ProgressModel) release() {
	m.cancel()
	m.pullMu.Lock()
	defer m.pullMu.Unlock()
	m.stop()
}

func (m ProgressModel) finished() bool { return m.done || m.failed >= 0 }

// Err returns the error that ended the traversal, if any.
func (m ProgressModel) Err() error { return m.err }

// Completed returns how many steps finished successfully.
func (m ProgressModel) Completed() int { return m.completed }

// RunProgress runs p under an interactive progress view written to out.
func RunProgress(ctx context.Context, p *pipeline.Pipeline, styles *StyleSet, out io.Writer) error {
	m := NewProgressModel(ctx, p, styles)
	defer m.release()
	final, err := tea.NewProgram(m, tea.WithOutput(out), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("running progress view: %w", err)
	}
	return final.(ProgressModel).Err()
}
