package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragflow/internal/service"
	"ragflow/internal/workflow"
)

// AnswerPort is the TUI-facing subset of the question-answering service.
type AnswerPort interface {
	Run(ctx context.Context, question string) (workflow.Result, error)
}

type answerMsg struct {
	question string
	result   workflow.Result
	err      error
}

// Model is the Bubble Tea model for the interactive chat.
type Model struct {
	ctx      context.Context
	service  AnswerPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	banner   string
	status   string
	question string
	answer   string
	path     []workflow.StageID
	busy     bool
	ready    bool
}

// New creates a chat model. banner is shown under the header.
func New(ctx context.Context, svc AnswerPort, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		service:  svc,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		banner:   banner,
		status:   "Ready. Ask about the sales reports.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + banner, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case answerMsg:
		m.busy = false
		m.question = msg.question
		m.path = msg.result.Path
		if msg.err != nil {
			m.answer = service.ProcessEnded
			m.status = "Error: " + msg.err.Error()
		} else {
			m.answer = msg.result.State.LLMOutput
			m.status = fmt.Sprintf("Answered %q", msg.question)
		}
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Answering %q", q)
			m.input.SetValue("")
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	ctx, svc := m.ctx, m.service
	return func() tea.Msg {
		res, err := svc.Run(ctx, q)
		return answerMsg{question: q, result: res, err: err}
	}
}

// View renders the header, the last answer, the input and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Flow")
	banner := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.banner)
	input := queryBoxStyle.Render(m.input.View())
	statusText := m.status
	if m.busy {
		statusText = m.spinner.View() + " " + statusText
	}
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(statusText)
	answer := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + banner + "\n" + answer + "\n" + input + "\n" + status
}

func (m Model) renderAnswer() string {
	if m.answer == "" {
		return "No answer yet."
	}
	title := "Q: " + m.question
	body := highlightBestSentence(m.answer, m.question)
	stages := make([]string, len(m.path))
	for i, id := range m.path {
		stages[i] = string(id)
	}
	trail := pathStyle.Render("Path: " + strings.Join(stages, " → "))
	return title + "\n\n" + body + "\n\n" + trail
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	pathStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence of text sharing the most
// words with query. The rest of text, including line breaks and a trailing
// unpunctuated fragment, is kept as is.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	sentences := splitSentences(text)
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	best := sentences[bestIdx]
	core := strings.TrimSpace(best)
	lead := best[:strings.Index(best, core)]
	trail := best[len(lead)+len(core):]
	sentences[bestIdx] = lead + highlightStyle.Render(core) + trail
	return strings.Join(sentences, "")
}

// splitSentences cuts text into pieces that concatenate back to text.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		out = append(out, text[last:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
