package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultTimeout for API requests
	DefaultTimeout = 5 * time.Minute

	// UploadFieldName is the multipart field carrying the audio artifact
	UploadFieldName = "file"
)

// Client is the transcription backend API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	debug      bool
	logOut     io.Writer
	observer   func(RequestEvent)
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithDebug enables debug logging
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithLogWriter sets where debug lines are written (default os.Stderr)
func WithLogWriter(w io.Writer) ClientOption {
	return func(c *Client) {
		if w != nil {
			c.logOut = w
		}
	}
}

// WithObserver registers a callback invoked after every HTTP call
func WithObserver(fn func(RequestEvent)) ClientOption {
	return func(c *Client) {
		c.observer = fn
	}
}

// NewClient creates a new backend client rooted at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("API base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme must be http or https", baseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logOut: os.Stderr,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewClientFromEnv creates a client using the CLIPSCRIBE_API_URL environment variable
func NewClientFromEnv(opts ...ClientOption) (*Client, error) {
	baseURL := os.Getenv("CLIPSCRIBE_API_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("CLIPSCRIBE_API_URL environment variable not set")
	}
	return NewClient(baseURL, opts...)
}

// BaseURL returns the normalized base URL the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListPrompts fetches the ordered list of prompt templates
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/prompts", nil, "")
	if err != nil {
		return nil, err
	}

	var prompts []Prompt
	if err := json.Unmarshal(respBody, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	return prompts, nil
}

// CreateVideo uploads an audio artifact and returns the created record
func (c *Client) CreateVideo(ctx context.Context, file UploadFile) (*Video, error) {
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("upload file is empty")
	}

	name := file.Name
	if name == "" {
		name = "audio.mp3"
	}
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// CreateFormFile would force application/octet-stream, so build the header by hand
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadFieldName, name))
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("failed to copy file to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/videos", body, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var result createVideoResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Video.ID == "" {
		return nil, fmt.Errorf("response is missing video.id")
	}

	return &result.Video, nil
}

// CreateTranscription asks the backend to transcribe an uploaded video.
// An empty prompt is omitted from the request body.
func (c *Client) CreateTranscription(ctx context.Context, videoID, prompt string) error {
	if videoID == "" {
		return fmt.Errorf("video ID is required")
	}

	payload, err := json.Marshal(transcriptionRequest{Prompt: prompt})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	path := "/videos/" + url.PathEscape(videoID) + "/transcription"
	_, err = c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), "application/json")
	return err
}

// do executes one request and returns the response body of a 2xx response
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	var reqBytes int64
	if body != nil {
		if l, ok := body.(interface{ Len() int }); ok {
			reqBytes = int64(l.Len())
		}
	}

	endpoint := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.debugf("%s %s", method, endpoint)
	if contentType != "" {
		c.debugf("Content-Type: %s", contentType)
	}

	start := time.Now()
	event := RequestEvent{Method: method, Path: path, RequestBytes: reqBytes}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		event.Latency = time.Since(start)
		event.Err = err
		c.notify(event)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	event.Latency = time.Since(start)
	event.StatusCode = resp.StatusCode
	event.ResponseBytes = int64(len(respBody))
	if err != nil {
		event.Err = err
		c.notify(event)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.debugf("Response status: %d", resp.StatusCode)
	if len(respBody) < 2000 {
		c.debugf("Response body: %s", string(respBody))
	} else {
		c.debugf("Response body (truncated): %s...", string(respBody[:2000]))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		event.Err = apiErr
		c.notify(event)
		return nil, apiErr
	}

	c.notify(event)
	return respBody, nil
}

// parseAPIError builds an APIError from a non-2xx response body
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		apiErr = &APIError{Message: fmt.Sprintf("API error (status %d): %s", status, msg)}
	}
	apiErr.StatusCode = status
	return apiErr
}

func (c *Client) notify(event RequestEvent) {
	if c.observer != nil {
		c.observer(event)
	}
}

func (c *Client) debugf(format string, args ...any) {
	if c.debug {
		fmt.Fprintf(c.logOut, "[DEBUG] "+format+"\n", args...)
	}
}
