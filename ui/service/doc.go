// Package service provides the session operations shared by the convmem HTTP
// API and the CLI.
//
// The service layer is HTTP-agnostic. It wraps a *convmem.Pipeline and adds
// pagination, not-found detection and transcript export.
//
// # Usage
//
//	svc := service.New(pipeline)
//
//	// Aggregated counters
//	stats, err := svc.GetDashboardStats(ctx)
//
//	// Page through sessions
//	list, err := svc.ListSessions(ctx, service.SessionListParams{
//	    Limit:  25,
//	    Offset: 0,
//	})
package service
