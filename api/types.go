// Package api provides a Go client for the clipscribe transcription backend.
// It covers the three calls the client needs: listing prompt templates,
// uploading an audio artifact and triggering transcription for it.
package api

import "time"

// Prompt is a named, reusable piece of transcription guidance text
type Prompt struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Template string `json:"template"`
}

// Video is the server-side record created for an uploaded media artifact
type Video struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// createVideoResponse is the envelope returned by POST /videos
type createVideoResponse struct {
	Video Video `json:"video"`
}

// transcriptionRequest is the JSON body for POST /videos/{id}/transcription
type transcriptionRequest struct {
	Prompt string `json:"prompt,omitempty"`
}

// UploadFile is an in-memory file sent as multipart form data
type UploadFile struct {
	// Name is the filename reported in the multipart header
	Name string

	// MIMEType is the part's Content-Type (e.g. audio/mpeg)
	MIMEType string

	// Data is the file content
	Data []byte
}

// RequestEvent describes one completed HTTP call. It is delivered to the
// observer configured with WithObserver.
type RequestEvent struct {
	Method     string
	Path       string
	StatusCode int
	Latency    time.Duration

	// RequestBytes is the size of the request body
	RequestBytes int64

	// ResponseBytes is the size of the response body
	ResponseBytes int64

	// Err is set when the call failed (transport error or non-2xx status)
	Err error
}

// APIError represents an error response from the backend
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
