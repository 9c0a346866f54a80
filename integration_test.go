//go:build integration
// +build integration

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"clipscribe/config"
	"clipscribe/media"
)

// generateTestVideo renders a short mp4 with a test pattern and a sine tone
func generateTestVideo(tb testing.TB, seconds int) string {
	tb.Helper()

	if _, err := media.CheckFFmpeg(""); err != nil {
		tb.Skipf("FFmpeg not available: %v", err)
	}

	path := filepath.Join(tb.TempDir(), "sample.mp4")
	duration := fmt.Sprintf("duration=%d", seconds)
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=10:"+duration,
		"-f", "lavfi", "-i", "sine=frequency=440:"+duration,
		"-shortest",
		"-c:v", "mpeg4",
		"-c:a", "aac",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		tb.Fatalf("Failed to generate test video: %v\n%s", err, output)
	}
	return path
}

// TestIntegration_ConvertToAudio extracts audio with the real engine
func TestIntegration_ConvertToAudio(t *testing.T) {
	videoPath := generateTestVideo(t, 3)

	video, err := media.OpenVideo(videoPath)
	if err != nil {
		t.Fatalf("Failed to open video: %v", err)
	}

	engine := media.NewEngine(media.WithWorkDir(t.TempDir()))
	converter := media.NewConverter(engine)

	var mu sync.Mutex
	var progress []float64

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	audio, err := converter.ConvertToAudio(ctx, video, func(f float64) {
		mu.Lock()
		progress = append(progress, f)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("ConvertToAudio failed: %v", err)
	}

	if audio.Name != media.AudioFileName || audio.MIMEType != media.AudioMIMEType {
		t.Errorf("unexpected audio file %s (%s)", audio.Name, audio.MIMEType)
	}
	if audio.Duration < 2*time.Second || audio.Duration > 4*time.Second {
		t.Errorf("expected ~3s of audio, got %v", audio.Duration)
	}
	if len(progress) == 0 {
		t.Error("expected progress reports")
	}

	t.Logf("Converted %s to %s of audio (%s), %d progress reports, engine %s",
		video.Name, media.FormatDuration(audio.Duration), media.FormatSize(audio.Size()), len(progress), engine.Version())
}

// TestIntegration_MediaInfo reads metadata with ffprobe
func TestIntegration_MediaInfo(t *testing.T) {
	videoPath := generateTestVideo(t, 2)

	if err := media.CheckFFprobe(""); err != nil {
		t.Skipf("FFprobe not available: %v", err)
	}

	info, err := media.GetMediaInfo(context.Background(), "", videoPath)
	if err != nil {
		t.Fatalf("Failed to get media info: %v", err)
	}
	if !info.HasVideo || !info.HasAudio {
		t.Errorf("expected video and audio streams, got %+v", info)
	}
	if info.Duration < time.Second {
		t.Errorf("unexpected duration %v", info.Duration)
	}
}

// TestIntegration_FullPipeline uploads a real conversion to a mock backend
func TestIntegration_FullPipeline(t *testing.T) {
	videoPath := generateTestVideo(t, 2)

	b := &backend{}
	server := httptest.NewServer(b.handler(t))
	defer server.Close()

	cfg := config.Default()
	cfg.APIURL = server.URL
	cfg.WorkDir = t.TempDir()
	cfg.ResetDelay = time.Hour

	var out bytes.Buffer
	opts := &Options{Video: videoPath, Template: "tpl-1"}
	if err := runNonInteractive(cfg, opts, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("runNonInteractive failed: %v\n%s", err, out.String())
	}

	if len(b.uploads) != 1 || b.uploads[0] != "audio.mp3 audio/mpeg" {
		t.Errorf("unexpected uploads: %v", b.uploads)
	}
	if len(b.prompts) != 1 || b.prompts[0] != "speakers: Ana, Bo" {
		t.Errorf("unexpected prompts: %v", b.prompts)
	}

	entries, err := os.ReadDir(cfg.WorkDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned up: %d entries left", len(entries))
	}

	t.Logf("Output:\n%s", out.String())
}

func binaryPath(t *testing.T) string {
	t.Helper()
	binaryName := "clipscribe"
	if runtime.GOOS == "windows" {
		binaryName = "clipscribe.exe"
	}
	if _, err := os.Stat(binaryName); os.IsNotExist(err) {
		t.Skip("Binary not found, skipping CLI integration test. Run 'go build' first.")
	}
	return "./" + binaryName
}

// TestIntegration_CLIHelp tests that the CLI help is working
func TestIntegration_CLIHelp(t *testing.T) {
	output, _ := exec.Command(binaryPath(t), "--help").CombinedOutput()
	outputStr := string(output)

	for _, expected := range []string{"clipscribe", "--api-url", "--video", "--prompt", "--template", "--tui", "--update"} {
		if !strings.Contains(outputStr, expected) {
			t.Errorf("Help output missing expected string: %s", expected)
		}
	}
}

// TestIntegration_CLIVersion tests the version command
func TestIntegration_CLIVersion(t *testing.T) {
	output, err := exec.Command(binaryPath(t), "--version").CombinedOutput()
	if err != nil {
		t.Fatalf("Version command failed: %v\nOutput: %s", err, string(output))
	}
	if !strings.Contains(string(output), "clipscribe") {
		t.Error("Version output should contain 'clipscribe'")
	}
}

// TestIntegration_CLIMissingURL checks that a run without a backend URL fails early
func TestIntegration_CLIMissingURL(t *testing.T) {
	cmd := exec.Command(binaryPath(t), "--config", filepath.Join(t.TempDir(), "missing.toml"))
	cmd.Env = append(os.Environ(), "CLIPSCRIBE_API_URL=")
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected failure, got output: %s", output)
	}
}

// BenchmarkConvertToAudio benchmarks audio extraction
func BenchmarkConvertToAudio(b *testing.B) {
	video, err := media.OpenVideo(generateTestVideo(b, 5))
	if err != nil {
		b.Fatal(err)
	}

	converter := media.NewConverter(media.NewEngine(media.WithWorkDir(b.TempDir())))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := converter.ConvertToAudio(context.Background(), video, nil); err != nil {
			b.Fatal(err)
		}
	}
}
