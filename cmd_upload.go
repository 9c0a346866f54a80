package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"

	"clipscribe/api"
	"clipscribe/config"
	"clipscribe/media"
	"clipscribe/prompts"
	"clipscribe/tui"
	"clipscribe/upload"
)

// noTemplate is the select value for writing a prompt from scratch
const noTemplate = ""

// pipelineCallbacks are injected into the client, the selector and the form.
// Any of them may be nil.
type pipelineCallbacks struct {
	observeRequest   func(api.RequestEvent)
	onStatus         func(upload.Status)
	onMediaUploaded  func(mediaID string)
	onReset          func()
	onPromptSelected func(template string)
}

// pipeline is one fully wired set of components
type pipeline struct {
	client   *api.Client
	engine   *media.Engine
	selector *prompts.Selector
	form     *upload.Form
}

type pipelineOption func(*pipelineSettings)

type pipelineSettings struct {
	converter upload.Converter
}

// withConverter replaces the ffmpeg converter
func withConverter(c upload.Converter) pipelineOption {
	return func(s *pipelineSettings) {
		s.converter = c
	}
}

func newPipeline(cfg *config.Config, logOut io.Writer, cb pipelineCallbacks, opts ...pipelineOption) (*pipeline, error) {
	var settings pipelineSettings
	for _, opt := range opts {
		opt(&settings)
	}

	client, err := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.Timeout),
		api.WithDebug(cfg.Debug),
		api.WithLogWriter(logOut),
		api.WithObserver(cb.observeRequest),
	)
	if err != nil {
		return nil, err
	}

	p := &pipeline{client: client}

	converter := settings.converter
	if converter == nil {
		p.engine = media.NewEngine(
			media.WithFFmpegPath(cfg.FFmpegPath),
			media.WithWorkDir(cfg.WorkDir),
			media.WithDebug(cfg.Debug),
			media.WithLogWriter(logOut),
		)
		converter = media.NewConverter(p.engine)
	}

	p.selector = prompts.NewSelector(client, cb.onPromptSelected)
	p.form = upload.NewForm(converter, client,
		upload.WithResetDelay(cfg.ResetDelay),
		upload.WithOnMediaUploaded(cb.onMediaUploaded),
		upload.WithStatusListener(cb.onStatus),
		upload.WithOnReset(cb.onReset),
		upload.WithDebug(cfg.Debug),
		upload.WithLogWriter(logOut),
	)
	return p, nil
}

// prepare loads the transcoding engine when the pipeline owns one
func (p *pipeline) prepare(ctx context.Context) error {
	if p.engine == nil {
		return nil
	}
	return p.engine.Load(ctx)
}

// statusPrinter writes status transitions as plain lines and conversion
// progress as a bar redrawn in place
type statusPrinter struct {
	out io.Writer

	mu    sync.Mutex
	last  upload.StatusCode
	inBar bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, last: upload.StatusWaiting}
}

// OnStatus is an upload.WithStatusListener callback
func (p *statusPrinter) OnStatus(status upload.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if status.ShowProgress() {
		fmt.Fprintf(p.out, "\r  %s", tui.ProgressBar(status.Progress, 100, 30))
		p.inBar = true
		p.last = status.Code
		return
	}
	if status.Code == p.last {
		return
	}
	if p.inBar {
		fmt.Fprintln(p.out)
		p.inBar = false
	}
	p.last = status.Code

	switch status.Code {
	case upload.StatusWaiting:
		// Delayed resets land while the next prompt may be on screen
	case upload.StatusError:
		fmt.Fprintln(p.out, errorStyle.Render("✗ "+status.Message))
	case upload.StatusSuccess:
		fmt.Fprintln(p.out, successStyle.Render("✓ "+status.Message))
	default:
		fmt.Fprintln(p.out, infoStyle.Render("• "+status.Message))
	}
}

// workflow is the classic huh based loop
type workflow struct {
	cfg      *config.Config
	pipeline *pipeline
	printer  *statusPrinter

	// template is the body reported by the selector callback
	template string
	uploaded []string
}

func newWorkflow(cfg *config.Config, logOut io.Writer) (*workflow, error) {
	w := &workflow{
		cfg:     cfg,
		printer: newStatusPrinter(os.Stdout),
	}

	p, err := newPipeline(cfg, logOut, pipelineCallbacks{
		onStatus: w.printer.OnStatus,
		onMediaUploaded: func(mediaID string) {
			w.uploaded = append(w.uploaded, mediaID)
		},
		onPromptSelected: func(template string) {
			w.template = template
		},
	})
	if err != nil {
		return nil, err
	}
	w.pipeline = p
	return w, nil
}

func (w *workflow) runUploadWorkflow() bool {
	// A pending delayed reset must not clear the next selection
	w.pipeline.form.Reset()
	w.template = ""

	// Step 1: Choose a prompt template
	var loadErr error
	err := spinner.New().
		Title("Loading prompt templates...").
		Action(func() {
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
			defer cancel()
			loadErr = w.pipeline.selector.Load(ctx)
		}).
		Run()
	if err == nil && loadErr != nil {
		fmt.Println(infoStyle.Render("Templates unavailable: " + loadErr.Error()))
	}

	if options := w.pipeline.selector.Options(); len(options) > 0 {
		templateID := noTemplate
		choices := []huh.Option[string]{huh.NewOption("No template", noTemplate)}
		for _, opt := range options {
			choices = append(choices, huh.NewOption(opt.Label, opt.Value))
		}

		err = huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select a prompt template").
				Options(choices...).
				Value(&templateID),
		)).
			WithTheme(huh.ThemeCatppuccin()).
			Run()
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return false
			}
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
			return false
		}
		if templateID != noTemplate {
			w.pipeline.selector.Select(templateID)
		}
	}

	// Step 2: Select video file
	var videoPath string
	startDir, _ := os.Getwd()

	filePicker := huh.NewFilePicker().
		Title("Select a video file").
		Description("Its audio track is extracted locally before upload").
		Picking(true).
		CurrentDirectory(startDir).
		ShowHidden(false).
		ShowPermissions(false).
		ShowSize(true).
		Height(15).
		AllowedTypes(media.AcceptedExtensions).
		Value(&videoPath)

	err = huh.NewForm(huh.NewGroup(filePicker)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false
		}
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		return false
	}

	video, err := media.OpenVideo(videoPath)
	if err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		return askToContinue()
	}

	var info *media.MediaInfo
	_ = spinner.New().
		Title("Reading video information...").
		Action(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			info, _ = media.GetMediaInfo(ctx, w.cfg.FFprobePath, video.Path)
		}).
		Run()
	fmt.Println(boxStyle.Render(describeVideo(video, info)))

	// Step 3: Prompt
	prompt := w.template
	err = huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title("Transcription prompt").
			Description("Optional context for the transcription, e.g. names or vocabulary").
			Placeholder("Leave empty to send no prompt").
			CharLimit(2000).
			Value(&prompt),
	)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()
	if err != nil {
		return askToContinue()
	}

	var proceed bool
	err = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Upload and transcribe this video?").
			Affirmative("Yes, upload").
			Negative("No, cancel").
			Value(&proceed),
	)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()
	if err != nil || !proceed {
		fmt.Println(infoStyle.Render("Upload cancelled."))
		return askToContinue()
	}

	// Step 4: Run the pipeline
	w.pipeline.form.SelectFile(video)

	ctx, cancel := context.WithTimeout(context.Background(), 2*w.cfg.Timeout)
	defer cancel()

	startTime := time.Now()
	mediaID, err := w.pipeline.form.Submit(ctx, prompt)
	if err != nil {
		fmt.Println(boxStyle.Render(errorStyle.Render("Upload failed\n\n") + err.Error()))
		return askToContinue()
	}

	fmt.Println(successStyle.Render(boxStyle.Render(fmt.Sprintf(
		"Done!\n\n"+
			"Video:   %s\n"+
			"Media:   %s\n"+
			"Took:    %s",
		video.Name,
		mediaID,
		media.FormatDuration(time.Since(startTime)),
	))))

	return askToContinue()
}

// runNonInteractive runs one upload for opts.Video and prints plain progress
func runNonInteractive(cfg *config.Config, opts *Options, out, logOut io.Writer, popts ...pipelineOption) error {
	printer := newStatusPrinter(out)

	var template string
	p, err := newPipeline(cfg, logOut, pipelineCallbacks{
		onStatus: printer.OnStatus,
		onMediaUploaded: func(mediaID string) {
			fmt.Fprintln(out, infoStyle.Render("Media id: "+mediaID))
		},
		onPromptSelected: func(body string) {
			template = body
		},
	}, popts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Timeout)
	defer cancel()

	if err := p.prepare(ctx); err != nil {
		return err
	}

	video, err := media.OpenVideo(opts.Video)
	if err != nil {
		return err
	}
	if !media.IsVideoFile(video.Path) {
		return fmt.Errorf("%s is not a supported video file", video.Name)
	}

	if opts.Template != "" {
		if err := p.selector.Load(ctx); err != nil {
			return err
		}
		if !p.selector.Select(opts.Template) {
			fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Unknown template %q, continuing without it", opts.Template)))
		}
	}

	// An explicit prompt wins over the template body
	prompt := template
	if opts.Prompt != "" {
		prompt = opts.Prompt
	}

	fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Uploading %s (%s)", video.Name, media.FormatSize(video.Size))))

	p.form.SelectFile(video)
	mediaID, err := p.form.Submit(ctx, prompt)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, successStyle.Render("Transcription requested for media "+mediaID))
	return nil
}

func describeVideo(video media.VideoFile, info *media.MediaInfo) string {
	text := fmt.Sprintf("📹 %s\n💾 Size: %s", video.Name, media.FormatSize(video.Size))
	if info != nil {
		if info.Duration > 0 {
			text += "\n⏱  Duration: " + media.FormatDuration(info.Duration)
		}
		if info.HasVideo && !info.HasAudio {
			text += "\n" + errorStyle.Render("No audio stream detected")
		}
	}
	return text
}

func askToContinue() bool {
	var choice string
	selectNext := huh.NewSelect[string]().
		Title("What next?").
		Options(
			huh.NewOption("Upload another video", "another"),
			huh.NewOption("Exit", "exit"),
		).
		Value(&choice)

	err := huh.NewForm(huh.NewGroup(selectNext)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()

	if err != nil {
		return false
	}

	return choice == "another"
}
