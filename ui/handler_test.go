package ui_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/internal/testutil"
	"github.com/youssefsiam38/convmem/storage"
	"github.com/youssefsiam38/convmem/ui"
)

func newPipeline(t *testing.T) *convmem.Pipeline {
	t.Helper()
	p, err := convmem.New(convmem.Config{
		Generator: testutil.NewScriptedGenerator(),
		Store:     storage.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestHandlerBasePath(t *testing.T) {
	h := ui.Handler(newPipeline(t), &ui.Config{BasePath: "/api"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 outside base path, got %d", rec.Code)
	}
}

func TestHandlerInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *ui.Config
	}{
		{"negative page size", &ui.Config{PageSize: -1}},
		{"page size over limit", &ui.Config{PageSize: 5000}},
		{"base path without slash", &ui.Config{BasePath: "api"}},
		{"base path trailing slash", &ui.Config{BasePath: "/api/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("expected panic")
				}
				if err, ok := r.(error); !ok || !errors.Is(err, ui.ErrInvalidConfig) {
					t.Errorf("panic value = %v, want ErrInvalidConfig", r)
				}
			}()
			ui.Handler(newPipeline(t), tt.cfg)
		})
	}
}
