package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"clipscribe/config"
	"clipscribe/media"
	"clipscribe/upload"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, o *Options)
	}{
		{
			name: "no flags",
			args: nil,
			check: func(t *testing.T, o *Options) {
				if o.APIURL != "" || o.Video != "" || o.TUI || o.Debug {
					t.Errorf("expected zero options, got %+v", o)
				}
			},
		},
		{
			name: "long flags",
			args: []string{"--api-url", "http://localhost:3333", "--timeout", "90s", "--reset-delay", "500ms", "--tui", "--debug"},
			check: func(t *testing.T, o *Options) {
				if o.APIURL != "http://localhost:3333" {
					t.Errorf("APIURL = %q", o.APIURL)
				}
				if o.Timeout != 90*time.Second {
					t.Errorf("Timeout = %v", o.Timeout)
				}
				if o.ResetDelay != 500*time.Millisecond {
					t.Errorf("ResetDelay = %v", o.ResetDelay)
				}
				if !o.TUI || !o.Debug {
					t.Errorf("expected TUI and Debug set, got %+v", o)
				}
			},
		},
		{
			name: "short flags",
			args: []string{"-u", "https://api.example.com", "-p", "names: Ana, Bo", "-t", "tpl-1", "-d"},
			check: func(t *testing.T, o *Options) {
				if o.APIURL != "https://api.example.com" {
					t.Errorf("APIURL = %q", o.APIURL)
				}
				if o.Prompt != "names: Ana, Bo" {
					t.Errorf("Prompt = %q", o.Prompt)
				}
				if o.Template != "tpl-1" {
					t.Errorf("Template = %q", o.Template)
				}
				if !o.Debug {
					t.Error("expected Debug set")
				}
			},
		},
		{
			name: "non-interactive",
			args: []string{"--video", "talk.mp4", "--ffmpeg", "/opt/ffmpeg", "--work-dir", "/tmp/cs"},
			check: func(t *testing.T, o *Options) {
				if o.Video != "talk.mp4" || o.FFmpeg != "/opt/ffmpeg" || o.WorkDir != "/tmp/cs" {
					t.Errorf("unexpected options %+v", o)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseOptions(tt.args, &bytes.Buffer{})
			if err != nil {
				t.Fatalf("parseOptions() error = %v", err)
			}
			tt.check(t, opts)
		})
	}
}

func TestParseOptions_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := parseOptions([]string{"--help"}, &out)
	if !errors.Is(err, errHelp) {
		t.Fatalf("expected errHelp, got %v", err)
	}
	for _, want := range []string{"--api-url", "--video", "--template", "--update"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("usage missing %s:\n%s", want, out.String())
		}
	}
}

func TestParseOptions_Invalid(t *testing.T) {
	tests := [][]string{
		{"--no-such-flag"},
		{"--timeout", "soon"},
		{"stray.mp4"},
	}
	for _, args := range tests {
		if _, err := parseOptions(args, &bytes.Buffer{}); err == nil {
			t.Errorf("parseOptions(%v) expected error", args)
		}
	}
}

func TestOptionsApply(t *testing.T) {
	cfg := config.Default()
	cfg.APIURL = "http://from-config"

	(&Options{}).apply(cfg)
	if cfg.APIURL != "http://from-config" || cfg.Timeout != config.DefaultTimeout {
		t.Errorf("empty options changed config: %+v", cfg)
	}

	(&Options{
		APIURL:     "http://from-flag",
		Timeout:    time.Minute,
		ResetDelay: time.Second,
		FFmpeg:     "/usr/local/bin/ffmpeg",
		FFprobe:    "/usr/local/bin/ffprobe",
		WorkDir:    "/var/tmp",
		LogFile:    "debug.log",
		Debug:      true,
	}).apply(cfg)

	want := config.Config{
		APIURL:      "http://from-flag",
		Timeout:     time.Minute,
		ResetDelay:  time.Second,
		FFmpegPath:  "/usr/local/bin/ffmpeg",
		FFprobePath: "/usr/local/bin/ffprobe",
		WorkDir:     "/var/tmp",
		Debug:       true,
		LogFile:     "debug.log",
	}
	if *cfg != want {
		t.Errorf("apply() = %+v, want %+v", *cfg, want)
	}
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	if !strings.HasPrefix(out.String(), "clipscribe "+version) {
		t.Errorf("unexpected version output: %q", out.String())
	}
	if !strings.Contains(out.String(), "commit: "+commit) {
		t.Errorf("missing commit: %q", out.String())
	}
}

func TestRunSelfUpdate_DevBuild(t *testing.T) {
	if version != "dev" {
		t.Skip("release build")
	}
	if err := runSelfUpdate(&bytes.Buffer{}); !errors.Is(err, errDevBuild) {
		t.Errorf("expected errDevBuild, got %v", err)
	}
}

func TestStatusPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newStatusPrinter(&out)

	p.OnStatus(upload.Status{Code: upload.StatusConverting, Message: "Converting..."})
	p.OnStatus(upload.Status{Code: upload.StatusConverting, Message: "Converting...", Progress: 50})
	p.OnStatus(upload.Status{Code: upload.StatusUploading, Message: "Uploading..."})
	p.OnStatus(upload.Status{Code: upload.StatusUploading, Message: "Uploading..."})
	p.OnStatus(upload.Status{Code: upload.StatusGenerating, Message: "Generating transcription..."})
	p.OnStatus(upload.Status{Code: upload.StatusSuccess, Message: "Success!"})
	p.OnStatus(upload.Status{Code: upload.StatusWaiting, Message: "Upload video"})

	got := out.String()
	for _, want := range []string{"Converting...", " 50%", "Uploading...", "Generating transcription...", "Success!"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "Uploading...") != 1 {
		t.Errorf("repeated status printed twice:\n%s", got)
	}
	if strings.Contains(got, "Upload video") {
		t.Errorf("waiting status should not be printed:\n%s", got)
	}
}

// stubConverter returns a fixed audio file after reporting progress
type stubConverter struct {
	progress []float64
	err      error
}

func (c *stubConverter) ConvertToAudio(ctx context.Context, video media.VideoFile, onProgress func(float64)) (*media.AudioFile, error) {
	for _, p := range c.progress {
		onProgress(p)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &media.AudioFile{
		Name:     media.AudioFileName,
		MIMEType: media.AudioMIMEType,
		Data:     []byte("ID3-audio"),
	}, nil
}

// backend is a fake transcription server
type backend struct {
	mu       sync.Mutex
	calls    []string
	uploads  []string
	prompts  []string
	rawBody  []string
	failPath string
}

func (b *backend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.calls = append(b.calls, r.Method+" "+r.URL.Path)

		if r.URL.Path == b.failPath {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message":"backend exploded"}`))
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/prompts":
			w.Write([]byte(`[{"id":"tpl-1","title":"Meeting","template":"speakers: Ana, Bo"},{"id":"tpl-2","title":"Lecture","template":"physics"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/videos":
			file, header, err := r.FormFile("file")
			if err != nil {
				t.Errorf("missing multipart file: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			file.Close()
			b.uploads = append(b.uploads, header.Filename+" "+header.Header.Get("Content-Type"))
			w.Write([]byte(`{"video":{"id":"vid-7"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/videos/vid-7/transcription":
			var body map[string]any
			raw := new(bytes.Buffer)
			raw.ReadFrom(r.Body)
			b.rawBody = append(b.rawBody, raw.String())
			if err := json.Unmarshal(raw.Bytes(), &body); err != nil {
				t.Errorf("invalid JSON body: %v", err)
			}
			prompt, _ := body["prompt"].(string)
			b.prompts = append(b.prompts, prompt)
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestRun(t *testing.T, b *backend) (*config.Config, string) {
	t.Helper()
	server := httptest.NewServer(b.handler(t))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.APIURL = server.URL
	cfg.Timeout = 10 * time.Second
	cfg.ResetDelay = time.Hour

	videoPath := filepath.Join(t.TempDir(), "standup.mp4")
	if err := os.WriteFile(videoPath, []byte("fake mp4 data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfg, videoPath
}

func TestRunNonInteractive(t *testing.T) {
	tests := []struct {
		name       string
		prompt     string
		template   string
		wantPrompt string
		wantOut    string
	}{
		{name: "plain", wantPrompt: ""},
		{name: "explicit prompt", prompt: "  glossary: k8s  ", wantPrompt: "glossary: k8s"},
		{name: "template", template: "tpl-1", wantPrompt: "speakers: Ana, Bo"},
		{name: "prompt overrides template", template: "tpl-2", prompt: "chemistry", wantPrompt: "chemistry"},
		{name: "unknown template", template: "missing", wantPrompt: "", wantOut: `Unknown template "missing"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &backend{}
			cfg, videoPath := newTestRun(t, b)

			var out bytes.Buffer
			opts := &Options{Video: videoPath, Prompt: tt.prompt, Template: tt.template}
			conv := &stubConverter{progress: []float64{0.3, 1.4, 1.0}}

			if err := runNonInteractive(cfg, opts, &out, &bytes.Buffer{}, withConverter(conv)); err != nil {
				t.Fatalf("runNonInteractive() error = %v\n%s", err, out.String())
			}

			if len(b.uploads) != 1 || b.uploads[0] != "audio.mp3 audio/mpeg" {
				t.Errorf("uploads = %v", b.uploads)
			}
			if len(b.prompts) != 1 || b.prompts[0] != tt.wantPrompt {
				t.Errorf("prompts = %q, want %q", b.prompts, tt.wantPrompt)
			}
			if tt.wantPrompt == "" && strings.Contains(b.rawBody[0], "prompt") {
				t.Errorf("empty prompt should be omitted, body %s", b.rawBody[0])
			}

			got := out.String()
			for _, want := range []string{"Uploading standup.mp4", " 30%", "Success!", "Media id: vid-7", "Transcription requested for media vid-7"} {
				if !strings.Contains(got, want) {
					t.Errorf("output missing %q:\n%s", want, got)
				}
			}
			if strings.Contains(got, "140%") {
				t.Errorf("progress above 100%% printed:\n%s", got)
			}
			if tt.wantOut != "" && !strings.Contains(got, tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, got)
			}
		})
	}
}

func TestRunNonInteractive_Failures(t *testing.T) {
	convErr := errors.New("codec missing")

	tests := []struct {
		name     string
		failPath string
		convErr  error
		wantStep upload.StatusCode
		wantMsg  string
	}{
		{name: "conversion", convErr: convErr, wantStep: upload.StatusConverting, wantMsg: "Conversion failed"},
		{name: "upload", failPath: "/videos", wantStep: upload.StatusUploading, wantMsg: "Upload failed"},
		{name: "transcription", failPath: "/videos/vid-7/transcription", wantStep: upload.StatusGenerating, wantMsg: "Transcription request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &backend{failPath: tt.failPath}
			cfg, videoPath := newTestRun(t, b)

			var out bytes.Buffer
			err := runNonInteractive(cfg, &Options{Video: videoPath}, &out, &bytes.Buffer{},
				withConverter(&stubConverter{err: tt.convErr}))

			var stepErr *upload.StepError
			if !errors.As(err, &stepErr) {
				t.Fatalf("expected StepError, got %v", err)
			}
			if stepErr.Step != tt.wantStep {
				t.Errorf("Step = %v, want %v", stepErr.Step, tt.wantStep)
			}
			if tt.convErr != nil && !errors.Is(err, tt.convErr) {
				t.Errorf("error does not wrap cause: %v", err)
			}
			if !strings.Contains(out.String(), tt.wantMsg) {
				t.Errorf("output missing %q:\n%s", tt.wantMsg, out.String())
			}
		})
	}
}

func TestRunNonInteractive_MissingVideo(t *testing.T) {
	cfg, _ := newTestRun(t, &backend{})
	err := runNonInteractive(cfg, &Options{Video: filepath.Join(t.TempDir(), "nope.mp4")}, &bytes.Buffer{}, &bytes.Buffer{},
		withConverter(&stubConverter{}))
	if err == nil {
		t.Fatal("expected error for missing video")
	}
}

func TestRunNonInteractive_NotAVideo(t *testing.T) {
	cfg, _ := newTestRun(t, &backend{})
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := runNonInteractive(cfg, &Options{Video: path}, &bytes.Buffer{}, &bytes.Buffer{},
		withConverter(&stubConverter{}))
	if err == nil || !strings.Contains(err.Error(), "not a supported video") {
		t.Errorf("expected unsupported video error, got %v", err)
	}
}

func TestNewPipeline_InvalidURL(t *testing.T) {
	cfg := config.Default()
	cfg.APIURL = "ftp://example.com"
	if _, err := newPipeline(cfg, &bytes.Buffer{}, pipelineCallbacks{}); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestNewPipeline_OwnsEngine(t *testing.T) {
	cfg := config.Default()
	cfg.APIURL = "http://localhost:3333"

	p, err := newPipeline(cfg, &bytes.Buffer{}, pipelineCallbacks{})
	if err != nil {
		t.Fatal(err)
	}
	if p.engine == nil {
		t.Error("expected pipeline to own an engine")
	}

	p, err = newPipeline(cfg, &bytes.Buffer{}, pipelineCallbacks{}, withConverter(&stubConverter{}))
	if err != nil {
		t.Fatal(err)
	}
	if p.engine != nil {
		t.Error("injected converter should not create an engine")
	}
	if err := p.prepare(context.Background()); err != nil {
		t.Errorf("prepare() without engine = %v", err)
	}
}

func TestDescribeVideo(t *testing.T) {
	video := media.VideoFile{Name: "talk.mp4", Size: 3 * 1024 * 1024}

	text := describeVideo(video, nil)
	if !strings.Contains(text, "talk.mp4") || strings.Contains(text, "Duration") {
		t.Errorf("unexpected description without info: %q", text)
	}

	text = describeVideo(video, &media.MediaInfo{Duration: 95 * time.Second, HasVideo: true})
	if !strings.Contains(text, "Duration: 01:35") {
		t.Errorf("missing duration: %q", text)
	}
	if !strings.Contains(text, "No audio stream") {
		t.Errorf("missing audio warning: %q", text)
	}
}
