package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"clipscribe/api"
	"clipscribe/upload"
)

// Messages delivered from pipeline goroutines
type (
	statusMsg         upload.Status
	mediaUploadedMsg  string
	resetMsg          struct{}
	requestMsg        api.RequestEvent
	promptSelectedMsg string
)

// Bridge forwards callbacks from the api client, the selector and the form
// into the Bubble Tea event loop. Its methods are meant to be passed as the
// injected callbacks of those components.
type Bridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

// NewBridge creates a bridge with a buffered event queue
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan tea.Msg, 256),
		done:   make(chan struct{}),
	}
}

// ObserveRequest is an api.WithObserver callback
func (b *Bridge) ObserveRequest(event api.RequestEvent) {
	b.send(requestMsg(event))
}

// OnStatus is an upload.WithStatusListener callback
func (b *Bridge) OnStatus(status upload.Status) {
	b.send(statusMsg(status))
}

// OnMediaUploaded is an upload.WithOnMediaUploaded callback
func (b *Bridge) OnMediaUploaded(mediaID string) {
	b.send(mediaUploadedMsg(mediaID))
}

// OnReset is an upload.WithOnReset callback
func (b *Bridge) OnReset() {
	b.send(resetMsg{})
}

// OnPromptSelected is the prompts.Selector callback
func (b *Bridge) OnPromptSelected(template string) {
	b.send(promptSelectedMsg(template))
}

// Close stops delivery; pending and later sends are dropped
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// wait returns a command that blocks for the next bridged message
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}
