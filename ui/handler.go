package ui

import (
	"net/http"

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/ui/api"
	"github.com/youssefsiam38/convmem/ui/service"
)

// Handler returns an http.Handler serving the JSON API of the pipeline.
//
// Usage:
//
//	http.Handle("/api/", ui.Handler(pipeline, &ui.Config{BasePath: "/api"}))
func Handler(pipeline *convmem.Pipeline, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.applyDefaults()
	}

	if err := cfg.validate(); err != nil {
		panic(err)
	}

	svc := service.New(pipeline)
	handler := api.NewRouter(svc, &api.Config{
		ReadOnly: cfg.ReadOnly,
		PageSize: cfg.PageSize,
		Logger:   cfg.Logger,
	})

	if cfg.BasePath != "" {
		handler = http.StripPrefix(cfg.BasePath, handler)
	}
	return handler
}
