// Package upload drives the video-to-transcription pipeline: convert the
// selected video to MP3, upload it, request a transcription, then reset.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"clipscribe/api"
	"clipscribe/media"
)

// DefaultResetDelay is how long the success state is shown before the form resets
const DefaultResetDelay = 2000 * time.Millisecond

var (
	// ErrNoFileSelected is returned by Submit when no video has been chosen
	ErrNoFileSelected = errors.New("no video file selected")

	// ErrBusy is returned by Submit while a run is in flight
	ErrBusy = errors.New("a conversion is already in progress")
)

// StepError reports which pipeline stage failed
type StepError struct {
	Step StatusCode
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", stepNames[e.Step], e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

var stepNames = map[StatusCode]string{
	StatusConverting: "Conversion",
	StatusUploading:  "Upload",
	StatusGenerating: "Transcription request",
}

// Converter extracts the audio track of a video
type Converter interface {
	ConvertToAudio(ctx context.Context, video media.VideoFile, onProgress func(float64)) (*media.AudioFile, error)
}

// MediaService is the remote side of the pipeline
type MediaService interface {
	CreateVideo(ctx context.Context, file api.UploadFile) (*api.Video, error)
	CreateTranscription(ctx context.Context, videoID, prompt string) error
}

// Timer is the handle returned by an AfterFunc
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Form owns one pipeline. It is safe for concurrent use; at most one run is
// active at a time.
type Form struct {
	converter Converter
	service   MediaService

	resetDelay      time.Duration
	afterFunc       AfterFunc
	onMediaUploaded func(mediaID string)
	onStatus        func(Status)
	onReset         func()
	debug           bool
	logOut          io.Writer

	mu         sync.Mutex
	status     Status
	file       *media.VideoFile
	resetTimer Timer
	resetGen   int
}

// FormOption configures the Form
type FormOption func(*Form)

// WithResetDelay sets how long success is shown before resetting
func WithResetDelay(d time.Duration) FormOption {
	return func(f *Form) {
		if d > 0 {
			f.resetDelay = d
		}
	}
}

// WithOnMediaUploaded sets the callback receiving the remote media id. It
// fires right after the form enters success, before the reset.
func WithOnMediaUploaded(fn func(mediaID string)) FormOption {
	return func(f *Form) {
		f.onMediaUploaded = fn
	}
}

// WithStatusListener receives every status change, progress updates included
func WithStatusListener(fn func(Status)) FormOption {
	return func(f *Form) {
		f.onStatus = fn
	}
}

// WithOnReset is called after the form returns to waiting and clears its file
func WithOnReset(fn func()) FormOption {
	return func(f *Form) {
		f.onReset = fn
	}
}

// WithAfterFunc replaces time.AfterFunc for the delayed reset
func WithAfterFunc(fn AfterFunc) FormOption {
	return func(f *Form) {
		if fn != nil {
			f.afterFunc = fn
		}
	}
}

// WithDebug enables debug logging
func WithDebug(debug bool) FormOption {
	return func(f *Form) {
		f.debug = debug
	}
}

// WithLogWriter sets where debug lines are written (default os.Stderr)
func WithLogWriter(w io.Writer) FormOption {
	return func(f *Form) {
		if w != nil {
			f.logOut = w
		}
	}
}

// NewForm creates a form in the waiting state
func NewForm(converter Converter, service MediaService, opts ...FormOption) *Form {
	f := &Form{
		converter:  converter,
		service:    service,
		resetDelay: DefaultResetDelay,
		afterFunc:  realAfterFunc,
		logOut:     os.Stderr,
		status:     DefaultStatus(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SelectFile replaces the pending video
func (f *Form) SelectFile(video media.VideoFile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.file = &video
}

// SelectedFile returns the pending video, if any
func (f *Form) SelectedFile() (media.VideoFile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return media.VideoFile{}, false
	}
	return *f.file, true
}

// Status returns the current status
func (f *Form) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// CanSubmit reports whether Submit would start a run
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file != nil && f.status.Code.AcceptsSubmit()
}

// Submit runs the whole pipeline for the selected video and returns the
// remote media id. It blocks until the run reaches success or error.
func (f *Form) Submit(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	if f.file == nil {
		f.mu.Unlock()
		return "", ErrNoFileSelected
	}
	if !f.status.Code.AcceptsSubmit() {
		f.mu.Unlock()
		return "", ErrBusy
	}
	video := *f.file
	f.cancelResetLocked()
	status, err := f.transitionLocked(StatusConverting, "")
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	f.notify(status)

	prompt = strings.TrimSpace(prompt)
	f.debugf("pipeline started for %s (%s)", video.Name, media.FormatSize(video.Size))

	audio, err := f.converter.ConvertToAudio(ctx, video, f.handleProgress)
	if err != nil {
		return "", f.fail(StatusConverting, err)
	}
	f.debugf("converted to %s (%s, %s)", audio.Name, media.FormatSize(audio.Size()), media.FormatDuration(audio.Duration))

	if err := f.advance(StatusUploading); err != nil {
		return "", err
	}
	created, err := f.service.CreateVideo(ctx, api.UploadFile{
		Name:     audio.Name,
		MIMEType: audio.MIMEType,
		Data:     audio.Data,
	})
	if err != nil {
		return "", f.fail(StatusUploading, err)
	}
	videoID := created.ID
	f.debugf("uploaded as video %s", videoID)

	if err := f.advance(StatusGenerating); err != nil {
		return "", err
	}
	if err := f.service.CreateTranscription(ctx, videoID, prompt); err != nil {
		return "", f.fail(StatusGenerating, err)
	}

	if err := f.advance(StatusSuccess); err != nil {
		return "", err
	}
	if f.onMediaUploaded != nil {
		f.onMediaUploaded(videoID)
	}
	f.scheduleReset()

	return videoID, nil
}

// Reset returns a finished form to waiting and clears the selected file.
// It reports false while a run is in flight.
func (f *Form) Reset() bool {
	f.mu.Lock()
	if f.status.Code.Busy() {
		f.mu.Unlock()
		return false
	}
	f.cancelResetLocked()
	status, ok := f.resetLocked()
	f.mu.Unlock()

	if ok {
		f.notify(status)
		if f.onReset != nil {
			f.onReset()
		}
	}
	return true
}

// handleProgress converts engine fractions to percentages. Values above 100
// are reported by ffmpeg near the end of some streams; they are dropped and
// the last valid value is kept.
func (f *Form) handleProgress(fraction float64) {
	pct := int(math.Round(fraction * 100))
	if pct > 100 || pct < 0 {
		return
	}

	f.mu.Lock()
	if f.status.Code != StatusConverting || f.status.Progress == pct {
		f.mu.Unlock()
		return
	}
	f.status.Progress = pct
	status := f.status
	f.mu.Unlock()

	f.notify(status)
}

func (f *Form) advance(to StatusCode) error {
	f.mu.Lock()
	status, err := f.transitionLocked(to, "")
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.notify(status)
	return nil
}

func (f *Form) fail(step StatusCode, cause error) error {
	stepErr := &StepError{Step: step, Err: cause}
	f.debugf("%v", stepErr)

	f.mu.Lock()
	status, err := f.transitionLocked(StatusError, stepErr.Error())
	f.mu.Unlock()
	if err == nil {
		f.notify(status)
	}
	return stepErr
}

// transitionLocked moves to the next stage. Callers hold f.mu.
func (f *Form) transitionLocked(to StatusCode, message string) (Status, error) {
	from := f.status.Code
	if !CanTransition(from, to) {
		return f.status, fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	if message == "" {
		message = statusMessages[to]
	}
	f.status = Status{Code: to, Message: message}
	f.debugf("status %s -> %s", from, to)
	return f.status, nil
}

func (f *Form) scheduleReset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resetGen++
	gen := f.resetGen
	f.resetTimer = f.afterFunc(f.resetDelay, func() {
		f.delayedReset(gen)
	})
}

func (f *Form) delayedReset(gen int) {
	f.mu.Lock()
	if gen != f.resetGen {
		f.mu.Unlock()
		return
	}
	f.resetTimer = nil
	status, ok := f.resetLocked()
	f.mu.Unlock()

	if ok {
		f.notify(status)
		if f.onReset != nil {
			f.onReset()
		}
	}
}

// resetLocked clears the run state. Callers hold f.mu.
func (f *Form) resetLocked() (Status, bool) {
	if f.status.Code == StatusWaiting {
		f.file = nil
		return f.status, false
	}
	status, err := f.transitionLocked(StatusWaiting, "")
	if err != nil {
		return status, false
	}
	f.file = nil
	return status, true
}

// cancelResetLocked stops a pending delayed reset. Callers hold f.mu.
func (f *Form) cancelResetLocked() {
	if f.resetTimer != nil {
		f.resetTimer.Stop()
		f.resetTimer = nil
	}
	f.resetGen++
}

func (f *Form) notify(status Status) {
	if f.onStatus != nil {
		f.onStatus(status)
	}
}

func (f *Form) debugf(format string, args ...any) {
	if f.debug {
		fmt.Fprintf(f.logOut, "[DEBUG] "+format+"\n", args...)
	}
}
