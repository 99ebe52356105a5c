package diagrams

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Renderer turns diagram source into image bytes. Failures are *RenderError.
type Renderer interface {
	Render(ctx context.Context, code string) ([]byte, error)
}

// RenderError is a failed render. Stderr carries the renderer's diagnostics.
type RenderError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RenderError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ExitCode != 0 {
		return fmt.Sprintf("render failed (exit %d): %s", e.ExitCode, msg)
	}
	return "render failed: " + msg
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// FakeRenderer returns canned output and records every call.
type FakeRenderer struct {
	mu    sync.Mutex
	Image []byte // nil means "png:" + code
	Err   error
	Calls []string
}

func (f *FakeRenderer) Render(_ context.Context, code string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, code)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Image != nil {
		return f.Image, nil
	}
	return []byte("png:" + code), nil
}

func (f *FakeRenderer) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

var (
	_ Renderer = (*PlantUMLRenderer)(nil)
	_ Renderer = (*FakeRenderer)(nil)
)
