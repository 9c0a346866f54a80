package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tcolgate/mp3"
)

const (
	// OutputFileName is the workspace name of the extracted audio
	OutputFileName = "output.mp3"

	// AudioFileName is the name the audio artifact is uploaded under
	AudioFileName = "audio.mp3"

	// AudioMIMEType is the content type of the audio artifact
	AudioMIMEType = "audio/mpeg"

	// AudioBitrate keeps the artifact small; speech survives it fine
	AudioBitrate = "20k"

	// AudioCodec is the ffmpeg MP3 encoder
	AudioCodec = "libmp3lame"
)

// AudioFile is the converted audio artifact, held in memory
type AudioFile struct {
	Name     string
	MIMEType string
	Data     []byte

	// Duration is the decoded length of the MP3 stream
	Duration time.Duration
}

// Size returns the artifact size in bytes
func (a *AudioFile) Size() int64 {
	return int64(len(a.Data))
}

// AudioExtractionArgs builds the ffmpeg arguments that keep only the audio
// stream and encode it as a low-bitrate MP3
func AudioExtractionArgs(inputName, outputName string) []string {
	return []string{
		"-i", inputName,
		"-map", "0:a",
		"-b:a", AudioBitrate,
		"-acodec", AudioCodec,
		outputName,
	}
}

// Converter extracts compact audio tracks from videos using an Engine
type Converter struct {
	engine *Engine
}

// NewConverter creates a converter bound to engine
func NewConverter(engine *Engine) *Converter {
	return &Converter{engine: engine}
}

// ConvertToAudio writes the video into a fresh engine session, extracts its
// audio as MP3 and reads the result back. onProgress receives the raw
// fractional progress reported by the engine and may be nil.
func (c *Converter) ConvertToAudio(ctx context.Context, video VideoFile, onProgress func(float64)) (*AudioFile, error) {
	session, err := c.engine.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	in, err := os.Open(video.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer in.Close()

	inputName := inputFileName(video.Path)
	if err := session.WriteFile(inputName, in); err != nil {
		return nil, err
	}

	if onProgress != nil {
		unsubscribe := session.OnProgress(onProgress)
		defer unsubscribe()
	}

	if err := session.Exec(ctx, AudioExtractionArgs(inputName, OutputFileName)...); err != nil {
		return nil, err
	}

	data, err := session.ReadFile(OutputFileName)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg completed but output file is missing: %w", err)
	}

	duration, err := ValidateMP3(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return &AudioFile{
		Name:     AudioFileName,
		MIMEType: AudioMIMEType,
		Data:     data,
		Duration: duration,
	}, nil
}

// inputFileName keeps the source extension so ffmpeg picks the right demuxer
func inputFileName(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".mp4"
	}
	return "input" + ext
}

// ValidateMP3 decodes every frame header in r and returns the total duration.
// It fails when no frame can be decoded.
func ValidateMP3(r io.Reader) (time.Duration, error) {
	dec := mp3.NewDecoder(r)

	var (
		frame   mp3.Frame
		skipped int
		frames  int
		total   time.Duration
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || (frames > 0 && errors.Is(err, io.ErrUnexpectedEOF)) {
				break
			}
			return 0, fmt.Errorf("failed to decode MP3 frame: %w", err)
		}
		frames++
		total += frame.Duration()
	}

	if frames == 0 {
		return 0, fmt.Errorf("failed to decode MP3 frame: no frames found")
	}
	return total, nil
}
