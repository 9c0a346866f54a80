// Package media wraps ffmpeg for clipscribe: it opens local video files,
// extracts compact MP3 audio tracks from them in isolated workspaces, and
// validates the result before it leaves the machine.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// AcceptedExtensions are the extensions offered by the file pickers
var AcceptedExtensions = []string{".mp4"}

var videoMIMETypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
}

// VideoFile is the user's chosen local video
type VideoFile struct {
	Path     string
	Name     string
	MIMEType string
	Size     int64
}

// OpenVideo stats path and describes it as a VideoFile. The content is not
// inspected; only the extension determines the MIME type.
func OpenVideo(path string) (VideoFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return VideoFile{}, fmt.Errorf("failed to access file: %w", err)
	}
	if info.IsDir() {
		return VideoFile{}, fmt.Errorf("%s is a directory", path)
	}

	return VideoFile{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: VideoMIMEType(path),
		Size:     info.Size(),
	}, nil
}

// VideoMIMEType returns the MIME type for a video path based on its extension
func VideoMIMEType(path string) string {
	if mt, ok := videoMIMETypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsVideoFile checks if a file has a video extension
func IsVideoFile(path string) bool {
	_, ok := videoMIMETypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	Path     string
	Duration time.Duration
	BitRate  int
	Format   string
	HasVideo bool
	HasAudio bool
}

// GetMediaInfo retrieves metadata about a media file using ffprobe
func GetMediaInfo(ctx context.Context, ffprobePath, path string) (*MediaInfo, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	formatCmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration,format_name,bit_rate",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	formatOut, err := formatCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get media info: %w", err)
	}
	formatInfo := parseFFprobeOutput(string(formatOut))

	streamsCmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	streamsOut, _ := streamsCmd.Output()

	info := &MediaInfo{
		Path:   path,
		Format: formatInfo["format_name"],
	}
	for _, line := range strings.Split(string(streamsOut), "\n") {
		switch strings.TrimSpace(line) {
		case "video":
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}

	if d, err := strconv.ParseFloat(formatInfo["duration"], 64); err == nil {
		info.Duration = time.Duration(d * float64(time.Second))
	}
	if br, err := strconv.Atoi(formatInfo["bit_rate"]); err == nil {
		info.BitRate = br
	}

	return info, nil
}

// parseFFprobeOutput parses key=value output from ffprobe
func parseFFprobeOutput(output string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "="); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])
			result[key] = value
		}
	}
	return result
}

// CheckFFmpeg checks if ffmpeg is installed and returns version info
func CheckFFmpeg(ffmpegPath string) (string, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	output, err := exec.Command(ffmpegPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w\n\n%s", err, GetFFmpegInstallHelp())
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "ffmpeg installed", nil
}

// CheckFFprobe checks if ffprobe is installed
func CheckFFprobe(ffprobePath string) error {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if err := exec.Command(ffprobePath, "-version").Run(); err != nil {
		return fmt.Errorf("ffprobe not found: %w\n\n%s", err, GetFFmpegInstallHelp())
	}
	return nil
}

// GetFFmpegInstallHelp returns platform-specific installation instructions
func GetFFmpegInstallHelp() string {
	switch runtime.GOOS {
	case "darwin":
		return `Install FFmpeg on macOS:
  brew install ffmpeg

Or download from: https://ffmpeg.org/download.html`
	case "linux":
		return `Install FFmpeg on Linux:
  Ubuntu/Debian: sudo apt install ffmpeg
  Fedora:        sudo dnf install ffmpeg
  Arch:          sudo pacman -S ffmpeg

Or download from: https://ffmpeg.org/download.html`
	case "windows":
		return `Install FFmpeg on Windows:
  winget install ffmpeg

Or download from: https://ffmpeg.org/download.html
Then add to PATH.`
	default:
		return `Please install FFmpeg from: https://ffmpeg.org/download.html`
	}
}

// FormatDuration formats a duration as HH:MM:SS, or MM:SS under an hour
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatSize formats a byte count for display
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
