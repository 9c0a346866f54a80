package upload

import "fmt"

// StatusCode identifies the pipeline stage
type StatusCode int

const (
	StatusWaiting StatusCode = iota
	StatusConverting
	StatusUploading
	StatusGenerating
	StatusSuccess
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusWaiting:
		return "waiting"
	case StatusConverting:
		return "converting"
	case StatusUploading:
		return "uploading"
	case StatusGenerating:
		return "generating"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("StatusCode(%d)", int(c))
	}
}

// AcceptsSubmit reports whether a new run may start from this stage
func (c StatusCode) AcceptsSubmit() bool {
	return c == StatusWaiting || c == StatusSuccess || c == StatusError
}

// Busy reports whether a run is in flight
func (c StatusCode) Busy() bool {
	return c == StatusConverting || c == StatusUploading || c == StatusGenerating
}

var statusMessages = map[StatusCode]string{
	StatusWaiting:    "Upload video",
	StatusConverting: "Converting...",
	StatusUploading:  "Uploading...",
	StatusGenerating: "Generating transcription...",
	StatusSuccess:    "Success!",
}

var transitions = map[StatusCode][]StatusCode{
	StatusWaiting:    {StatusConverting},
	StatusConverting: {StatusUploading, StatusError},
	StatusUploading:  {StatusGenerating, StatusError},
	StatusGenerating: {StatusSuccess, StatusError},
	StatusSuccess:    {StatusWaiting, StatusConverting},
	StatusError:      {StatusConverting, StatusWaiting},
}

// CanTransition reports whether the pipeline may move from one stage to another
func CanTransition(from, to StatusCode) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Status is the single active pipeline state. Progress (0-100) is only
// meaningful while converting.
type Status struct {
	Code     StatusCode
	Message  string
	Progress int
}

// DefaultStatus is the initial waiting state
func DefaultStatus() Status {
	return Status{Code: StatusWaiting, Message: statusMessages[StatusWaiting]}
}

// ShowProgress reports whether Progress should be displayed
func (s Status) ShowProgress() bool {
	return s.Code == StatusConverting && s.Progress > 0
}

func (s Status) String() string {
	if s.ShowProgress() {
		return fmt.Sprintf("%s %d%%", s.Message, s.Progress)
	}
	return s.Message
}
