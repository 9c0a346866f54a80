package prompts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"clipscribe/api"
)

type stubLister struct {
	calls   atomic.Int32
	prompts []api.Prompt
	err     error
}

func (s *stubLister) ListPrompts(ctx context.Context) ([]api.Prompt, error) {
	s.calls.Add(1)
	return s.prompts, s.err
}

func samplePrompts() []api.Prompt {
	return []api.Prompt{
		{ID: "t1", Title: "Default", Template: "Summarize: "},
		{ID: "t2", Title: "YouTube titles", Template: "Suggest titles for: "},
	}
}

func TestSelectorOptions(t *testing.T) {
	s := NewSelector(&stubLister{prompts: samplePrompts()}, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	opts := s.Options()
	if len(opts) != 2 {
		t.Fatalf("expected 2 options, got %d", len(opts))
	}
	if opts[0] != (Option{Value: "t1", Label: "Default"}) {
		t.Errorf("unexpected first option %+v", opts[0])
	}
	if opts[1] != (Option{Value: "t2", Label: "YouTube titles"}) {
		t.Errorf("unexpected second option %+v", opts[1])
	}
}

func TestSelectorSelect(t *testing.T) {
	var got []string
	s := NewSelector(&stubLister{prompts: samplePrompts()}, func(template string) {
		got = append(got, template)
	})
	s.Load(context.Background())

	if !s.Select("t2") {
		t.Error("expected t2 to be selected")
	}
	if len(got) != 1 || got[0] != "Suggest titles for: " {
		t.Errorf("unexpected callback values %q", got)
	}

	if s.Select("missing") {
		t.Error("expected unknown id to report false")
	}
	if len(got) != 1 {
		t.Errorf("expected no callback for unknown id, got %q", got)
	}
}

func TestSelectorSelectBeforeLoad(t *testing.T) {
	called := false
	s := NewSelector(&stubLister{prompts: samplePrompts()}, func(string) { called = true })

	if s.Select("t1") {
		t.Error("expected selection to fail before templates are loaded")
	}
	if called {
		t.Error("callback must not fire before templates are loaded")
	}
}

func TestSelectorLoadOnce(t *testing.T) {
	lister := &stubLister{prompts: samplePrompts()}
	s := NewSelector(lister, nil)

	for i := 0; i < 3; i++ {
		s.Load(context.Background())
	}
	if n := lister.calls.Load(); n != 1 {
		t.Errorf("expected one fetch, got %d", n)
	}
}

func TestSelectorLoadError(t *testing.T) {
	s := NewSelector(&stubLister{err: errors.New("connection refused")}, nil)

	err := s.Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(s.Options()) != 0 {
		t.Error("expected empty list after failed load")
	}
	if s.Select("t1") {
		t.Error("expected selection to be a no-op after failed load")
	}
}

func TestSelectorPromptsIsCopy(t *testing.T) {
	s := NewSelector(&stubLister{prompts: samplePrompts()}, nil)
	s.Load(context.Background())

	p := s.Prompts()
	p[0].Template = "mutated"
	if s.Prompts()[0].Template != "Summarize: " {
		t.Error("expected Prompts to return a copy")
	}
}

func TestSelectorWithClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"t1","title":"Default","template":"Summarize: "}]`))
	}))
	defer server.Close()

	client, err := api.NewClient(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	var selected string
	s := NewSelector(client, func(template string) { selected = template })
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s.Select("t1")
	if selected != "Summarize: " {
		t.Errorf("expected template body, got %q", selected)
	}
}
