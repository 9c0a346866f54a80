package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"clipscribe/config"
	"clipscribe/media"
	"clipscribe/tui"
)

// Build info - set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Styles
var (
	subtitleStyle = lipgloss.NewStyle().
			Foreground(tui.ColorSecondary).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(tui.ColorSuccess)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(tui.ColorError)

	infoStyle = lipgloss.NewStyle().
			Foreground(tui.ColorSubtle)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(tui.ColorSecondary).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

// Options are the command line flags. Zero values leave the configured
// setting untouched.
type Options struct {
	Config     string        `short:"c" long:"config" description:"Path to a TOML config file" value-name:"FILE"`
	APIURL     string        `short:"u" long:"api-url" description:"Base URL of the transcription backend" value-name:"URL"`
	Timeout    time.Duration `long:"timeout" description:"Per-request timeout (e.g. 2m)"`
	ResetDelay time.Duration `long:"reset-delay" description:"How long the success state is shown (e.g. 2s)"`
	FFmpeg     string        `long:"ffmpeg" description:"Path to the ffmpeg binary" value-name:"PATH"`
	FFprobe    string        `long:"ffprobe" description:"Path to the ffprobe binary" value-name:"PATH"`
	WorkDir    string        `long:"work-dir" description:"Directory for conversion workspaces" value-name:"DIR"`
	LogFile    string        `long:"log-file" description:"Debug log file used by the full-screen UI" value-name:"FILE"`
	Debug      bool          `short:"d" long:"debug" description:"Print [DEBUG] diagnostics"`

	TUI      bool   `long:"tui" description:"Use the full-screen interface"`
	Video    string `long:"video" description:"Transcribe this video without prompting" value-name:"FILE"`
	Prompt   string `short:"p" long:"prompt" description:"Prompt sent with --video"`
	Template string `short:"t" long:"template" description:"Prompt template id used with --video" value-name:"ID"`

	Version bool `short:"v" long:"version" description:"Print version information"`
	Update  bool `long:"update" description:"Update clipscribe to the latest release"`
}

// errHelp is returned by parseOptions when usage was printed
var errHelp = errors.New("help requested")

func parseOptions(args []string, out io.Writer) (*Options, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "clipscribe"
	parser.Usage = "[OPTIONS]"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(out, flagsErr.Message)
			return nil, errHelp
		}
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", rest)
	}
	return &opts, nil
}

// apply overrides cfg with every flag that was set
func (o *Options) apply(cfg *config.Config) {
	if o.APIURL != "" {
		cfg.APIURL = o.APIURL
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if o.ResetDelay > 0 {
		cfg.ResetDelay = o.ResetDelay
	}
	if o.FFmpeg != "" {
		cfg.FFmpegPath = o.FFmpeg
	}
	if o.FFprobe != "" {
		cfg.FFprobePath = o.FFprobe
	}
	if o.WorkDir != "" {
		cfg.WorkDir = o.WorkDir
	}
	if o.LogFile != "" {
		cfg.LogFile = o.LogFile
	}
	if o.Debug {
		cfg.Debug = true
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "clipscribe %s\n", version)
	fmt.Fprintf(w, "  commit: %s\n", commit)
	fmt.Fprintf(w, "  built:  %s\n", date)
	fmt.Fprintf(w, "  go:     %s\n", runtime.Version())
	fmt.Fprintf(w, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func fail(msg string, err error) {
	fmt.Println(errorStyle.Render(msg + err.Error()))
	os.Exit(1)
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stdout)
	if err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(0)
		}
		fail("Error: ", err)
	}

	if opts.Version {
		printVersion(os.Stdout)
		os.Exit(0)
	}

	if opts.Update {
		if err := runSelfUpdate(os.Stdout); err != nil {
			fail("Update failed: ", err)
		}
		os.Exit(0)
	}

	// Load .env file if it exists (won't error if missing)
	_ = godotenv.Load()

	cfg, err := config.Load(opts.Config)
	if err != nil {
		fail("Error: ", err)
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fail("Error: ", err)
	}

	if opts.Video != "" {
		if err := runNonInteractive(cfg, opts, os.Stdout, os.Stderr); err != nil {
			fail("Error: ", err)
		}
		return
	}

	fmt.Println(tui.GetHeader())

	engineVersion, err := media.CheckFFmpeg(cfg.FFmpegPath)
	if err != nil {
		fail("Error: ", err)
	}
	if cfg.Debug {
		fmt.Println(infoStyle.Render("ffmpeg: " + engineVersion))
	}
	if err := media.CheckFFprobe(cfg.FFprobePath); err != nil {
		// Media info is optional
		fmt.Println(infoStyle.Render("Note: " + err.Error()))
	}

	if opts.TUI {
		if err := runFullScreen(cfg, opts); err != nil {
			fail("Error: ", err)
		}
		return
	}

	w, err := newWorkflow(cfg, os.Stderr)
	if err != nil {
		fail("Error: ", err)
	}

	// Main loop
	for {
		if !w.runUploadWorkflow() {
			break
		}
	}

	if len(w.uploaded) > 0 {
		fmt.Println(infoStyle.Render(fmt.Sprintf("Uploaded %d video(s) this session", len(w.uploaded))))
	}
	fmt.Println(subtitleStyle.Render("\nThanks for using clipscribe!"))
}

// runFullScreen runs the Bubble Tea workflow. Debug output goes to the log
// file because the UI owns the terminal.
func runFullScreen(cfg *config.Config, opts *Options) error {
	logOut := io.Discard
	if cfg.Debug {
		f, err := tea.LogToFile(cfg.LogFile, "clipscribe")
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	bridge := tui.NewBridge()
	p, err := newPipeline(cfg, logOut, pipelineCallbacks{
		observeRequest:   bridge.ObserveRequest,
		onStatus:         bridge.OnStatus,
		onMediaUploaded:  bridge.OnMediaUploaded,
		onReset:          bridge.OnReset,
		onPromptSelected: bridge.OnPromptSelected,
	})
	if err != nil {
		return err
	}

	startDir, _ := os.Getwd()
	ids, err := tui.RunUploadUI(tui.UploadOptions{
		Selector:      p.selector,
		Form:          p.form,
		Bridge:        bridge,
		FFprobePath:   cfg.FFprobePath,
		StartDir:      startDir,
		InitialPrompt: opts.Prompt,
	})
	if err != nil {
		return err
	}

	if len(ids) > 0 {
		fmt.Println(successStyle.Render(fmt.Sprintf("Uploaded %d video(s)", len(ids))))
		for _, id := range ids {
			fmt.Println(infoStyle.Render("  • " + id))
		}
	}
	return nil
}
