package tui

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"clipscribe/api"
	"clipscribe/media"
	"clipscribe/upload"
)

// FeedEntryType represents the kind of activity entry
type FeedEntryType string

const (
	// EntryRequest is a completed HTTP call
	EntryRequest FeedEntryType = "request"
	// EntryStatus is a pipeline status transition
	EntryStatus FeedEntryType = "status"
	// EntryError is a failed call or step
	EntryError FeedEntryType = "error"
	// EntryComplete marks a finished run
	EntryComplete FeedEntryType = "complete"
)

// FeedEntry is a single line in the activity feed
type FeedEntry struct {
	Timestamp time.Time
	Type      FeedEntryType
	Title     string

	// Detail is rendered muted after the title
	Detail string
}

// ActivityFeed lists HTTP calls and pipeline transitions in a scrolling viewport
type ActivityFeed struct {
	Entries  []FeedEntry
	Viewport viewport.Model
	Width    int
	Height   int

	// MaxEntries limits the number of entries kept (0 = unlimited)
	MaxEntries int
}

// NewActivityFeed creates a feed with the given dimensions
func NewActivityFeed(width, height int) *ActivityFeed {
	vp := viewport.New(width, height)

	return &ActivityFeed{
		Viewport:   vp,
		Width:      width,
		Height:     height,
		MaxEntries: 100,
	}
}

// Add appends an entry and scrolls to it
func (f *ActivityFeed) Add(entry FeedEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	f.Entries = append(f.Entries, entry)
	if f.MaxEntries > 0 && len(f.Entries) > f.MaxEntries {
		f.Entries = f.Entries[len(f.Entries)-f.MaxEntries:]
	}

	f.Viewport.SetContent(f.Render())
	f.Viewport.GotoBottom()
}

// AddRequest records a finished HTTP call
func (f *ActivityFeed) AddRequest(event api.RequestEvent) {
	entry := FeedEntry{
		Type:  EntryRequest,
		Title: fmt.Sprintf("%s %s", event.Method, event.Path),
	}

	var parts []string
	if event.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", event.StatusCode, http.StatusText(event.StatusCode)))
	}
	if event.Latency > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", event.Latency.Seconds()))
	}
	if event.RequestBytes > 0 {
		parts = append(parts, "sent "+media.FormatSize(event.RequestBytes))
	}
	entry.Detail = strings.Join(parts, ", ")

	if event.Err != nil {
		entry.Type = EntryError
		entry.Detail = truncateString(event.Err.Error(), 80)
	}

	f.Add(entry)
}

// AddStatus records a pipeline transition. Progress-only updates are skipped.
func (f *ActivityFeed) AddStatus(status upload.Status) {
	if n := len(f.Entries); n > 0 {
		last := f.Entries[n-1]
		if (last.Type == EntryStatus || last.Type == EntryComplete) && last.Title == status.Message {
			return
		}
	}

	entry := FeedEntry{Type: EntryStatus, Title: status.Message}
	switch status.Code {
	case upload.StatusError:
		entry.Type = EntryError
		entry.Title = truncateString(status.Message, 80)
	case upload.StatusSuccess:
		entry.Type = EntryComplete
	}
	f.Add(entry)
}

// SetSize updates the feed dimensions
func (f *ActivityFeed) SetSize(width, height int) {
	f.Width = width
	f.Height = height
	f.Viewport.Width = width
	f.Viewport.Height = height
	f.Viewport.SetContent(f.Render())
}

// Clear removes all entries
func (f *ActivityFeed) Clear() {
	f.Entries = nil
	f.Viewport.SetContent(f.Render())
}

// View returns the viewport view for Bubble Tea
func (f *ActivityFeed) View() string {
	return f.Viewport.View()
}

// Render renders all entries to a string
func (f *ActivityFeed) Render() string {
	if len(f.Entries) == 0 {
		return MutedStyle.Render("  No activity yet")
	}

	lines := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		lines = append(lines, f.renderEntry(e))
	}
	return strings.Join(lines, "\n")
}

func (f *ActivityFeed) renderEntry(e FeedEntry) string {
	icon, style := entryStyle(e.Type)
	timestamp := lipgloss.NewStyle().Foreground(ColorMuted).Render(e.Timestamp.Format("15:04:05"))

	var suffix string
	if e.Detail != "" {
		if e.Type == EntryError {
			suffix = " " + lipgloss.NewStyle().Foreground(ColorError).Render("- "+e.Detail)
		} else {
			suffix = " " + MutedStyle.Render("("+e.Detail+")")
		}
	}

	return fmt.Sprintf("%s %s %s%s", timestamp, style.Render(icon), style.Render(e.Title), suffix)
}

func entryStyle(t FeedEntryType) (string, lipgloss.Style) {
	switch t {
	case EntryRequest:
		return "[>]", lipgloss.NewStyle().Foreground(ColorSecondary)
	case EntryError:
		return "[!]", lipgloss.NewStyle().Foreground(ColorError)
	case EntryComplete:
		return "[x]", lipgloss.NewStyle().Foreground(ColorSuccess)
	default:
		return "[-]", lipgloss.NewStyle().Foreground(ColorPrimary)
	}
}

// RenderFeedBox renders the feed under a title in a bordered box
func RenderFeedBox(feed *ActivityFeed, title string, width int) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(width).
		Padding(0, 1)

	titleStr := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).Render(title)
	return titleStr + "\n" + boxStyle.Render(feed.View())
}
