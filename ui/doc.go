// Package ui serves a convmem pipeline over HTTP.
//
// # Quick Start
//
//	pool, _ := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
//	drv := pgxv5.New(pool)
//
//	pipeline, _ := convmem.New(convmem.Config{
//	    Generator: generation.NewAnthropicGenerator(&client, model, 4096),
//	    Store:     drv.GetStore(),
//	})
//
//	mux := http.NewServeMux()
//	mux.Handle("/api/", ui.Handler(pipeline, &ui.Config{BasePath: "/api"}))
//
//	http.ListenAndServe(":8080", mux)
//
// # Adding Middleware
//
// Wrap handlers externally using standard Go patterns:
//
//	handler := authMiddleware(loggingMiddleware(ui.Handler(pipeline, cfg)))
//	http.Handle("/api/", handler)
//
// See package api for the endpoints.
package ui
