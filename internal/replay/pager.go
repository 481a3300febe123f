package replay

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// Pager is an interactive terminal viewer for rendered traces.
type Pager struct {
	title string
}

// NewPager creates a pager with the given title bar.
func NewPager(title string) *Pager {
	return &Pager{title: title}
}

// Run shows content until the user quits.
func (p *Pager) Run(content string) error {
	_, err := tea.NewProgram(newPagerModel(p.title, content),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	).Run()
	return err
}

// RunLive shows render's output and re-renders whenever path changes.
// Traces are replaced by rename, so the parent directory is watched and
// events are filtered by file name.
func (p *Pager) RunLive(path string, render func() (string, error)) error {
	content, err := render()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	m := newPagerModel(p.title, content)
	m.live = true
	m.render = render
	m.watcher = watcher
	m.target = filepath.Clean(path)

	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	return err
}

type traceChangedMsg struct{}

type pagerModel struct {
	viewport viewport.Model
	title    string
	content  string
	wrapped  string
	ready    bool

	live       bool
	render     func() (string, error)
	watcher    *fsnotify.Watcher
	target     string
	lastUpdate time.Time
	renderErr  error

	searching bool
	input     textinput.Model
	query     string
	matches   []int
	current   int
	notFound  bool
}

func newPagerModel(title, content string) *pagerModel {
	return &pagerModel{title: title, content: content}
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live && m.watcher != nil {
		return m.waitForChange()
	}
	return nil
}

func (m *pagerModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) != m.target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					time.Sleep(100 * time.Millisecond)
					return traceChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.updateSearch(msg)
	}

	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case traceChangedMsg:
		m.reload()
		cmds = append(cmds, m.waitForChange())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.query == "" {
				return m, tea.Quit
			}
			m.clearSearch()
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		case "f":
			if m.live {
				m.viewport.GotoBottom()
			}
		case "/":
			m.searching = true
			m.input = textinput.New()
			m.input.Placeholder = "Search..."
			m.input.CharLimit = 100
			m.input.Width = 40
			m.input.SetValue(m.query)
			m.input.Focus()
			return m, textinput.Blink
		case "n":
			m.step(1)
		case "N":
			m.step(-1)
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // title and footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.setContent(m.content)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.searching = false
			m.query = m.input.Value()
			m.search()
			if len(m.matches) > 0 {
				m.jump(0)
			}
			return m, nil
		case "esc", "ctrl+c":
			m.searching = false
			m.clearSearch()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// reload re-renders the trace keeping the scroll offset where possible.
func (m *pagerModel) reload() {
	if m.render == nil {
		return
	}
	content, err := m.render()
	if err != nil {
		// a half-written file; keep the last good render
		m.renderErr = err
		return
	}
	m.renderErr = nil
	offset := m.viewport.YOffset
	m.setContent(content)
	m.viewport.SetYOffset(offset)
	m.lastUpdate = time.Now()
}

func (m *pagerModel) setContent(content string) {
	m.content = content
	m.wrapped = wrapContent(content, m.viewport.Width)
	m.viewport.SetContent(m.wrapped)
	if m.query != "" {
		m.search()
	}
}

func (m *pagerModel) clearSearch() {
	m.query = ""
	m.matches = nil
	m.current = 0
	m.notFound = false
}

// search records the wrapped line numbers containing the query,
// case-insensitively.
func (m *pagerModel) search() {
	m.matches = nil
	m.current = 0
	m.notFound = false
	if m.query == "" {
		return
	}
	q := strings.ToLower(m.query)
	for i, line := range strings.Split(m.wrapped, "\n") {
		if strings.Contains(strings.ToLower(line), q) {
			m.matches = append(m.matches, i)
		}
	}
	m.notFound = len(m.matches) == 0
}

func (m *pagerModel) step(delta int) {
	if len(m.matches) == 0 {
		return
	}
	m.current = (m.current + delta + len(m.matches)) % len(m.matches)
	m.jump(m.current)
}

// jump centers match i in the viewport.
func (m *pagerModel) jump(i int) {
	if i < 0 || i >= len(m.matches) {
		return
	}
	m.current = i
	m.viewport.SetYOffset(m.matches[i] - m.viewport.Height/2)
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	title := pagerTitleStyle.Render(m.title)
	rule := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)))
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, pagerInfoStyle.Render(rule))

	return header + "\n" + m.viewport.View() + "\n" + m.footer()
}

func (m *pagerModel) footer() string {
	if m.searching {
		return warnStyle.Render("/") + m.input.View()
	}

	var help string
	switch {
	case m.notFound:
		help = fmt.Sprintf(" %s │ /: search ", errorStyle.Render("Pattern not found"))
	case len(m.matches) > 0:
		help = fmt.Sprintf(" %s │ n/N: next/prev │ esc: clear ",
			warnStyle.Render(fmt.Sprintf("[%d/%d]", m.current+1, len(m.matches))))
	case m.live && m.renderErr != nil:
		help = fmt.Sprintf(" %s │ q: quit ", errorStyle.Render("reload failed"))
	case m.live:
		help = fmt.Sprintf(" %s │ q: quit │ /: search │ f: follow ", successStyle.Bold(true).Render("● LIVE"))
	default:
		help = " q: quit │ /: search │ n/N: next/prev │ g/G: top/bottom "
	}

	info := fmt.Sprintf(" %d%% ", int(m.viewport.ScrollPercent()*100))
	fill := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info)))
	return pagerInfoStyle.Render(help) + pagerInfoStyle.Render(fill) + pagerInfoStyle.Render(info)
}

// wrapContent wraps lines wider than width. Step lines ("  3 │ ...") keep
// their continuation aligned after the last separator.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			out = append(out, line)
			continue
		}
		sep := strings.LastIndex(line, "│")
		if sep <= 0 {
			out = append(out, strings.Split(wordwrap.String(line, width), "\n")...)
			continue
		}
		start := sep + len("│")
		for start < len(line) && line[start] == ' ' {
			start++
		}
		prefix := line[:start]
		pad := strings.Repeat(" ", lipgloss.Width(prefix))
		avail := width - lipgloss.Width(prefix)
		if avail < 20 {
			avail = 20
		}
		parts := strings.Split(wordwrap.String(line[start:], avail), "\n")
		out = append(out, prefix+parts[0])
		for _, p := range parts[1:] {
			out = append(out, pad+p)
		}
	}
	return strings.Join(out, "\n")
}
