// Package prompts loads the backend's prompt templates and resolves a
// user's choice to the template body.
package prompts

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"clipscribe/api"
)

// Lister fetches the available prompt templates in display order
type Lister interface {
	ListPrompts(ctx context.Context) ([]api.Prompt, error)
}

// Option is one entry of the rendered template list
type Option struct {
	Value string
	Label string
}

// Selector holds the fetched templates and reports selections through an
// injected callback. The zero value is not usable; call NewSelector.
type Selector struct {
	lister           Lister
	onPromptSelected func(template string)

	loadOnce sync.Once
	loadErr  error

	mu      sync.RWMutex
	prompts []api.Prompt
}

// NewSelector creates a selector. onPromptSelected receives the template
// body of every recognised selection and may be nil.
func NewSelector(lister Lister, onPromptSelected func(template string)) *Selector {
	return &Selector{
		lister:           lister,
		onPromptSelected: onPromptSelected,
	}
}

// Load fetches the templates. Only the first call performs the request;
// later calls return its result. On failure the list stays empty.
func (s *Selector) Load(ctx context.Context) error {
	s.loadOnce.Do(func() {
		prompts, err := s.lister.ListPrompts(ctx)
		if err != nil {
			s.loadErr = fmt.Errorf("failed to load prompts: %w", err)
			return
		}

		s.mu.Lock()
		s.prompts = prompts
		s.mu.Unlock()
	})
	return s.loadErr
}

// Prompts returns a copy of the loaded templates in server order
func (s *Selector) Prompts() []api.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.Prompt(nil), s.prompts...)
}

// Options returns one option per template, valued by ID and labeled by title
func (s *Selector) Options() []Option {
	return lo.Map(s.Prompts(), func(p api.Prompt, _ int) Option {
		return Option{Value: p.ID, Label: p.Title}
	})
}

// Select resolves id to its template and notifies the callback. Unknown ids
// are ignored and report false.
func (s *Selector) Select(id string) bool {
	prompt, ok := lo.Find(s.Prompts(), func(p api.Prompt) bool {
		return p.ID == id
	})
	if !ok {
		return false
	}

	if s.onPromptSelected != nil {
		s.onPromptSelected(prompt.Template)
	}
	return true
}
