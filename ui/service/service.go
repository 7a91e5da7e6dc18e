package service

import (
	"github.com/youssefsiam38/convmem"
)

// Service provides the session operations shared by the HTTP layers.
type Service struct {
	pipeline *convmem.Pipeline
}

// New creates a new Service over the given pipeline.
func New(pipeline *convmem.Pipeline) *Service {
	return &Service{
		pipeline: pipeline,
	}
}

// Pipeline returns the underlying pipeline.
// This is useful for advanced operations not covered by the service.
func (s *Service) Pipeline() *convmem.Pipeline {
	return s.pipeline
}
