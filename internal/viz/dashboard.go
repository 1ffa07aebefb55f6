package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/memdyn/internal/dynamo"
)

const historyCapacity = 600

type sampleMsg dynamo.Sample

type samplesClosedMsg struct{}

type resultMsg dynamo.Result

// Dashboard follows a running simulation. It reads samples until the
// channel closes and quits once the run result arrives.
type Dashboard struct {
	title     string
	totalTime float64
	samples   <-chan dynamo.Sample
	done      <-chan dynamo.Result
	cancel    func()

	width      int
	energy     []float64
	mechError  []float64
	last       dynamo.Sample
	count      int
	result     *dynamo.Result
	showErrors bool
	canceled   bool
}

// NewDashboard builds the model. cancel is called when the user quits
// before the run finishes.
func NewDashboard(title string, totalTime float64, samples <-chan dynamo.Sample, done <-chan dynamo.Result, cancel func()) Dashboard {
	return Dashboard{
		title:      title,
		totalTime:  totalTime,
		samples:    samples,
		done:       done,
		cancel:     cancel,
		width:      80,
		energy:     make([]float64, 0, historyCapacity),
		mechError:  make([]float64, 0, historyCapacity),
		showErrors: true,
	}
}

func waitSample(ch <-chan dynamo.Sample) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return samplesClosedMsg{}
		}
		return sampleMsg(s)
	}
}

func waitResult(ch <-chan dynamo.Result) tea.Cmd {
	return func() tea.Msg { return resultMsg(<-ch) }
}

func (m Dashboard) Init() tea.Cmd {
	cmds := []tea.Cmd{waitResult(m.done)}
	if m.samples != nil {
		cmds = append(cmds, waitSample(m.samples))
	}
	return tea.Batch(cmds...)
}

func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.result == nil && !m.canceled && m.cancel != nil {
				m.cancel()
				m.canceled = true
			}
			if m.result != nil {
				return m, tea.Quit
			}
		case "p":
			m.showErrors = !m.showErrors
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case sampleMsg:
		m.observe(dynamo.Sample(msg))
		return m, waitSample(m.samples)
	case samplesClosedMsg:
	case resultMsg:
		r := dynamo.Result(msg)
		m.result = &r
		return m, tea.Quit
	}
	return m, nil
}

func (m *Dashboard) observe(s dynamo.Sample) {
	m.last = s
	m.count++
	m.energy = appendBounded(m.energy, s.Total)
	m.mechError = appendBounded(m.mechError, s.MechErrorNorm)
}

func appendBounded(h []float64, v float64) []float64 {
	if len(h) == historyCapacity {
		copy(h, h[1:])
		h = h[:len(h)-1]
	}
	return append(h, v)
}

// Result returns the run result once it has arrived.
func (m Dashboard) Result() (dynamo.Result, bool) {
	if m.result == nil {
		return dynamo.Result{}, false
	}
	return *m.result, true
}

func (m Dashboard) status() dynamo.Status {
	if m.result != nil {
		return m.result.Status
	}
	return dynamo.Running
}

func (m Dashboard) View() string {
	var b strings.Builder
	b.WriteString(Title(strings.ToUpper(m.title)) + "\n")
	b.WriteString(StatusBadge(m.status()))
	if m.canceled && m.result == nil {
		b.WriteString(hintStyle.Render("  canceling…"))
	}
	b.WriteString("\n\n")

	if m.totalTime > 0 {
		frac := m.last.Time / m.totalTime
		b.WriteString(ProgressBar(frac, 40) + fmt.Sprintf(" %5.1f%%\n\n", 100*min(frac, 1)))
	}

	graphWidth := max(m.width-30, 20)
	if len(m.energy) > 1 {
		b.WriteString(graphStyle.Render(asciigraph.Plot(m.energy,
			asciigraph.Height(8), asciigraph.Width(graphWidth), asciigraph.Caption("total energy"))) + "\n\n")
	}
	if m.showErrors && len(m.mechError) > 1 {
		b.WriteString(graphStyle.Render(asciigraph.Plot(m.mechError,
			asciigraph.Height(4), asciigraph.Width(graphWidth), asciigraph.Caption("force error norm"))) + "\n\n")
	}

	stats := []string{
		Fieldf("time", "%.6g", m.last.Time),
		Fieldf("frames", "%d", m.count),
		Fieldf("vertices", "%d", m.last.Vertices),
		Fieldf("total", "%.6g", m.last.Total),
		Fieldf("kinetic", "%.6g", m.last.Kinetic),
		Fieldf("potential", "%.6g", m.last.Potential),
	}
	forces := []string{
		Fieldf("mech error", "%.4g", m.last.MechErrorNorm),
		Fieldf("chem error", "%.4g", m.last.ChemErrorNorm),
		Fieldf("area", "%.6g", m.last.Area),
		Fieldf("volume", "%.6g", m.last.Volume),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		Panel(strings.Join(stats, "\n")), " ", Panel(strings.Join(forces, "\n"))))
	b.WriteString("\n")

	if m.result != nil && m.result.Err != nil {
		b.WriteString(errorStyle.Render(m.result.Err.Error()) + "\n")
	}
	b.WriteString(hintStyle.Render("q: quit  p: toggle error trace") + "\n")
	return b.String()
}

// Watch runs the dashboard until the result arrives and returns it.
func Watch(title string, totalTime float64, samples <-chan dynamo.Sample, done <-chan dynamo.Result, cancel func()) (dynamo.Result, error) {
	final, err := tea.NewProgram(NewDashboard(title, totalTime, samples, done, cancel)).Run()
	if err != nil {
		return dynamo.Result{}, err
	}
	res, ok := final.(Dashboard).Result()
	if !ok {
		return dynamo.Result{}, fmt.Errorf("dashboard exited before the run finished")
	}
	return res, nil
}
