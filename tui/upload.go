package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"clipscribe/api"
	"clipscribe/media"
	"clipscribe/prompts"
	"clipscribe/upload"
)

// UploadStep represents the current screen of the upload workflow
type UploadStep int

const (
	UStepLoadingTemplates UploadStep = iota
	UStepSelectTemplate
	UStepSelectVideo
	UStepEnterPrompt
	UStepRunning
	UStepSuccess
	UStepError
)

// UploadOptions wires the model to its collaborators
type UploadOptions struct {
	Selector *prompts.Selector
	Form     *upload.Form
	Bridge   *Bridge

	// FFprobePath is used for the media info line; empty means PATH lookup
	FFprobePath string

	// StartDir is where the file picker opens (default current directory)
	StartDir string

	// InitialPrompt pre-fills the prompt input
	InitialPrompt string
}

// UploadModel is the Bubble Tea model for template selection and the upload pipeline
type UploadModel struct {
	step UploadStep

	// UI Components
	filepicker filepicker.Model
	textInput  textinput.Model
	spinner    spinner.Model
	progress   progress.Model
	feed       *ActivityFeed

	// Collaborators
	selector    *prompts.Selector
	form        *upload.Form
	bridge      *Bridge
	ffprobePath string

	// Template menu
	templateOptions []prompts.Option
	templateIndex   int
	templatesErr    string

	// Selection state
	video     *media.VideoFile
	mediaInfo *media.MediaInfo
	prompt    string

	// Pipeline state
	status       upload.Status
	uploadedIDs  []string
	errorMessage string
	startTime    time.Time

	// Dimensions
	width  int
	height int

	quitting bool

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type templatesLoadedMsg struct {
	options []prompts.Option
	err     error
}

type mediaInfoMsg struct {
	path string
	info *media.MediaInfo
}

type submitDoneMsg struct {
	mediaID string
	err     error
}

// NewUploadModel creates the upload model
func NewUploadModel(opts UploadOptions) UploadModel {
	fp := filepicker.New()
	fp.AllowedTypes = media.AcceptedExtensions
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.ShowHidden = false
	fp.ShowSize = true
	fp.Height = 12
	if opts.StartDir != "" {
		fp.CurrentDirectory = opts.StartDir
	} else if wd, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = wd
	}

	ti := textinput.New()
	ti.Placeholder = "Keywords mentioned in the video, separated by commas"
	ti.CharLimit = 1024
	ti.Width = 60
	ti.SetValue(opts.InitialPrompt)

	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"[=   ]", "[==  ]", "[=== ]", "[ ===]", "[  ==]", "[   =]"},
		FPS:    time.Second / 8,
	}
	s.Style = lipgloss.NewStyle().Foreground(ColorBrand)

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	ctx, cancel := context.WithCancel(context.Background())

	return UploadModel{
		step:        UStepLoadingTemplates,
		filepicker:  fp,
		textInput:   ti,
		spinner:     s,
		progress:    p,
		feed:        NewActivityFeed(70, 6),
		selector:    opts.Selector,
		form:        opts.Form,
		bridge:      opts.Bridge,
		ffprobePath: opts.FFprobePath,
		prompt:      opts.InitialPrompt,
		status:      upload.DefaultStatus(),
		width:       80,
		height:      24,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Init initializes the model
func (m UploadModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.filepicker.Init(),
		m.loadTemplates(),
		m.bridge.wait(),
	)
}

// Update handles messages
func (m UploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = m.width - 20
		m.feed.SetSize(m.width-12, 6)
		m.textInput.Width = m.width - 20
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()
		case "q":
			if m.step != UStepEnterPrompt && m.step != UStepRunning {
				return m.quit()
			}
		case "esc":
			if m.step != UStepRunning {
				return m.goBack()
			}
		}

		return m.handleStepInput(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case templatesLoadedMsg:
		if msg.err != nil {
			m.templatesErr = msg.err.Error()
			m.step = UStepSelectVideo
			return m, m.filepicker.Init()
		}
		m.templateOptions = msg.options
		m.step = UStepSelectTemplate
		return m, nil

	case promptSelectedMsg:
		m.prompt = string(msg)
		m.textInput.SetValue(m.prompt)
		m.textInput.CursorEnd()
		return m, m.bridge.wait()

	case requestMsg:
		m.feed.AddRequest(api.RequestEvent(msg))
		return m, m.bridge.wait()

	case statusMsg:
		m.status = upload.Status(msg)
		m.feed.AddStatus(m.status)
		return m, m.bridge.wait()

	case mediaUploadedMsg:
		m.uploadedIDs = append(m.uploadedIDs, string(msg))
		m.feed.Add(FeedEntry{Type: EntryComplete, Title: "Media uploaded", Detail: "id " + string(msg)})
		return m, m.bridge.wait()

	case resetMsg:
		m.status = upload.DefaultStatus()
		m.video = nil
		m.mediaInfo = nil
		m.prompt = ""
		m.textInput.SetValue("")
		m.textInput.Blur()
		if m.step == UStepSuccess || m.step == UStepError {
			m.step = UStepSelectVideo
			return m, tea.Batch(m.filepicker.Init(), m.bridge.wait())
		}
		return m, m.bridge.wait()

	case mediaInfoMsg:
		if m.video != nil && m.video.Path == msg.path {
			m.mediaInfo = msg.info
		}
		return m, nil

	case submitDoneMsg:
		if errors.Is(msg.err, upload.ErrBusy) {
			return m, nil
		}
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			m.step = UStepError
			return m, nil
		}
		m.step = UStepSuccess
		return m, nil
	}

	switch m.step {
	case UStepSelectVideo:
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)

		if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
			return m.selectVideo(path)
		}
		return m, cmd

	case UStepEnterPrompt:
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleStepInput handles keyboard input for specific steps
func (m UploadModel) handleStepInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case UStepSelectTemplate:
		switch msg.String() {
		case "up", "k":
			if m.templateIndex > 0 {
				m.templateIndex--
			}
		case "down", "j":
			if m.templateIndex < len(m.templateOptions) {
				m.templateIndex++
			}
		case "enter":
			// index 0 keeps the current prompt
			if m.templateIndex > 0 {
				m.selector.Select(m.templateOptions[m.templateIndex-1].Value)
			}
			m.step = UStepSelectVideo
			return m, m.filepicker.Init()
		}
		return m, nil

	case UStepSelectVideo:
		// the file picker handles its own keys
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)
		if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
			return m.selectVideo(path)
		}
		return m, cmd

	case UStepEnterPrompt:
		switch msg.String() {
		case "enter":
			return m.submit()
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd

	case UStepSuccess:
		switch msg.String() {
		case "enter", "r":
			return m.submit()
		case "n":
			m.form.Reset()
		}

	case UStepError:
		switch msg.String() {
		case "enter", "r":
			return m.submit()
		}
	}

	return m, nil
}

// goBack navigates to the previous step
func (m UploadModel) goBack() (tea.Model, tea.Cmd) {
	switch m.step {
	case UStepSelectVideo:
		if len(m.templateOptions) > 0 {
			m.step = UStepSelectTemplate
		}
	case UStepEnterPrompt:
		m.textInput.Blur()
		m.step = UStepSelectVideo
		return m, m.filepicker.Init()
	case UStepError:
		// the reset callback returns us to file selection
		m.form.Reset()
	}
	return m, nil
}

func (m UploadModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancel()
	m.bridge.Close()
	return m, tea.Quit
}

func (m UploadModel) selectVideo(path string) (tea.Model, tea.Cmd) {
	video, err := media.OpenVideo(path)
	if err != nil {
		m.errorMessage = err.Error()
		m.step = UStepError
		return m, nil
	}

	m.form.SelectFile(video)
	m.video = &video
	m.mediaInfo = nil
	m.step = UStepEnterPrompt
	m.textInput.Focus()
	m.textInput.CursorEnd()

	return m, tea.Batch(textinput.Blink, m.loadMediaInfo(path))
}

func (m UploadModel) submit() (tea.Model, tea.Cmd) {
	if !m.form.CanSubmit() {
		return m, nil
	}

	if m.step == UStepEnterPrompt {
		m.prompt = m.textInput.Value()
	}
	m.textInput.Blur()
	m.errorMessage = ""
	m.step = UStepRunning
	m.startTime = time.Now()

	form := m.form
	ctx := m.ctx
	prompt := m.prompt
	return m, func() tea.Msg {
		id, err := form.Submit(ctx, prompt)
		return submitDoneMsg{mediaID: id, err: err}
	}
}

func (m UploadModel) loadTemplates() tea.Cmd {
	selector := m.selector
	ctx := m.ctx
	return func() tea.Msg {
		if err := selector.Load(ctx); err != nil {
			return templatesLoadedMsg{err: err}
		}
		return templatesLoadedMsg{options: selector.Options()}
	}
}

func (m UploadModel) loadMediaInfo(path string) tea.Cmd {
	ffprobe := m.ffprobePath
	ctx := m.ctx
	return func() tea.Msg {
		info, err := media.GetMediaInfo(ctx, ffprobe, path)
		if err != nil {
			return mediaInfoMsg{path: path}
		}
		return mediaInfoMsg{path: path, info: info}
	}
}

// View renders the UI
func (m UploadModel) View() string {
	if m.quitting {
		return MutedStyle.Render("Goodbye!\n")
	}

	var b strings.Builder

	b.WriteString(GetHeader())
	b.WriteString("\n")
	b.WriteString(m.renderStepIndicator())
	b.WriteString("\n")

	switch m.step {
	case UStepLoadingTemplates:
		b.WriteString(BoxStyle.Render(m.spinner.View() + " " + BodyStyle.Render("Loading prompt templates...")))
	case UStepSelectTemplate:
		b.WriteString(m.renderTemplateSelection())
	case UStepSelectVideo:
		b.WriteString(m.renderVideoPicker())
	case UStepEnterPrompt:
		b.WriteString(m.renderPromptInput())
	case UStepRunning:
		b.WriteString(m.renderRunning())
	case UStepSuccess:
		b.WriteString(m.renderSuccess())
	case UStepError:
		b.WriteString(m.renderError())
	}

	if len(m.feed.Entries) > 0 {
		b.WriteString("\n")
		b.WriteString(RenderFeedBox(m.feed, "Activity", m.width-8))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m UploadModel) renderStepIndicator() string {
	steps := []struct {
		name   string
		active bool
		done   bool
	}{
		{"Template", m.step >= UStepSelectTemplate, m.step > UStepSelectTemplate},
		{"Video", m.step >= UStepSelectVideo, m.step > UStepSelectVideo},
		{"Prompt", m.step >= UStepEnterPrompt, m.step > UStepEnterPrompt},
		{"Transcribe", m.step >= UStepRunning, m.step == UStepSuccess},
	}

	var parts []string
	for i, s := range steps {
		var style lipgloss.Style
		var icon string

		switch {
		case s.done:
			icon = "[x]"
			style = lipgloss.NewStyle().Foreground(ColorSuccess)
		case s.active && m.step == UStepError && i == len(steps)-1:
			icon = "[!]"
			style = lipgloss.NewStyle().Foreground(ColorError)
		case s.active:
			icon = "[>]"
			style = SelectedStyle
		default:
			icon = "[ ]"
			style = lipgloss.NewStyle().Foreground(ColorMuted)
		}

		parts = append(parts, style.Render(icon+" "+s.name))
		if i < len(steps)-1 {
			color := ColorBorder
			if s.done {
				color = ColorSuccess
			}
			parts = append(parts, lipgloss.NewStyle().Foreground(color).Render("---"))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m UploadModel) renderTemplateSelection() string {
	title := TitleStyle.Render("Choose a prompt template")

	var items strings.Builder
	labels := append([]string{"No template"}, optionLabels(m.templateOptions)...)
	for i, label := range labels {
		cursor := "  "
		style := BodyStyle
		if i == m.templateIndex {
			cursor = "> "
			style = SelectedStyle
		}
		items.WriteString(style.Render(cursor+label) + "\n")
	}

	return BoxStyle.Render(title + "\n" + items.String())
}

func optionLabels(opts []prompts.Option) []string {
	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = o.Label
	}
	return labels
}

func (m UploadModel) renderVideoPicker() string {
	title := TitleStyle.Render("Select a video")
	desc := MutedStyle.Render("Only " + strings.Join(media.AcceptedExtensions, ", ") + " files are listed")

	content := title + "\n" + desc
	if m.templatesErr != "" {
		content += "\n" + WarningStyle.Render("Templates unavailable: "+truncateString(m.templatesErr, 60))
	}
	return BoxStyle.Render(content + "\n\n" + m.filepicker.View())
}

func (m UploadModel) renderVideoSummary() string {
	if m.video == nil {
		return ""
	}

	line := InfoStyle.Render(m.video.Name) + MutedStyle.Render(" ("+media.FormatSize(m.video.Size))
	if m.mediaInfo != nil && m.mediaInfo.Duration > 0 {
		line += MutedStyle.Render(", " + media.FormatDuration(m.mediaInfo.Duration))
	}
	line += MutedStyle.Render(")")
	if m.mediaInfo != nil && !m.mediaInfo.HasAudio {
		line += "\n" + WarningStyle.Render("This file has no audio stream; conversion will fail")
	}
	return line
}

func (m UploadModel) renderPromptInput() string {
	title := TitleStyle.Render("Transcription prompt")
	label := BodyStyle.Render("Prompt (optional):")

	return BoxStyle.Render(
		title + "\n" +
			m.renderVideoSummary() + "\n\n" +
			label + "\n" +
			m.textInput.View(),
	)
}

func (m UploadModel) renderRunning() string {
	title := TitleStyle.Render("Processing...")

	content := title + "\n" +
		m.renderVideoSummary() + "\n\n" +
		m.spinner.View() + " " + StatusBadge(m.status)

	if m.status.Code == upload.StatusConverting {
		content += "\n\n" + m.progress.ViewAs(float64(m.status.Progress)/100)
	}

	elapsed := MutedStyle.Render(fmt.Sprintf("Elapsed: %s", formatElapsed(time.Since(m.startTime))))
	return BoxStyle.Render(content + "\n" + elapsed)
}

func (m UploadModel) renderSuccess() string {
	title := SuccessStyle.Render("Transcription requested!")

	var id string
	if n := len(m.uploadedIDs); n > 0 {
		id = m.uploadedIDs[n-1]
	}

	summary := fmt.Sprintf("Video:  %s\nMedia:  %s\nTime:   %s",
		videoName(m.video),
		id,
		formatElapsed(time.Since(m.startTime)),
	)
	summaryBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSuccess).
		Padding(1, 2).
		Render(summary)

	hint := MutedStyle.Render("\nThe form resets shortly.  [enter] Transcribe again  [n] New video  [q] Quit")
	return BoxStyle.Render(title + "\n\n" + summaryBox + hint)
}

func (m UploadModel) renderError() string {
	title := ErrorStyle.Render("Error")

	errorBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(1, 2).
		Render(m.errorMessage)

	hint := MutedStyle.Render("\n[r] Retry  [esc] Choose another video  [q] Quit")
	return BoxStyle.Render(title + "\n\n" + errorBox + hint)
}

func (m UploadModel) renderHelp() string {
	var keys []string

	switch m.step {
	case UStepSelectTemplate:
		keys = append(keys, "j/k", "Navigate", "enter", "Select")
	case UStepSelectVideo:
		keys = append(keys, "j/k", "Navigate", "enter", "Select", "h/l", "Go up/down")
	case UStepEnterPrompt:
		keys = append(keys, "enter", "Transcribe", "esc", "Back", "ctrl+c", "Quit")
		return renderKeyHelp(keys...)
	case UStepRunning:
		keys = append(keys, "ctrl+c", "Abort")
		return renderKeyHelp(keys...)
	}

	if m.step == UStepSelectTemplate || m.step == UStepSelectVideo {
		keys = append(keys, "esc", "Back", "q", "Quit")
	}
	return renderKeyHelp(keys...)
}

func videoName(v *media.VideoFile) string {
	if v == nil {
		return "-"
	}
	return v.Name
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// Getter methods for external access
func (m UploadModel) IsQuitting() bool      { return m.quitting }
func (m UploadModel) HasError() bool        { return m.step == UStepError }
func (m UploadModel) GetError() string      { return m.errorMessage }
func (m UploadModel) UploadedIDs() []string { return m.uploadedIDs }

// RunUploadUI runs the full-screen workflow and returns the ids of the media
// uploaded during the session
func RunUploadUI(opts UploadOptions) ([]string, error) {
	model := NewUploadModel(opts)
	p := tea.NewProgram(model, tea.WithAltScreen())

	finalModel, err := p.Run()
	opts.Bridge.Close()
	if err != nil {
		return nil, err
	}

	m := finalModel.(UploadModel)
	return m.UploadedIDs(), nil
}
