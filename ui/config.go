package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/youssefsiam38/convmem"
	"github.com/youssefsiam38/convmem/ui/service"
)

// ErrInvalidConfig is wrapped by every configuration error Handler panics with.
var ErrInvalidConfig = errors.New("ui: invalid configuration")

// Logger is the pipeline's logger; a nil Logger disables request logging.
type Logger = convmem.Logger

type Config struct {
	// BasePath is stripped from request paths before routing, so a handler
	// mounted under "/api/" uses BasePath "/api". Empty mounts at the root.
	BasePath string

	// ReadOnly rejects turns and session creation or deletion with 403.
	ReadOnly bool

	Logger Logger

	// PageSize is the default limit of list endpoints.
	PageSize int
}

func DefaultConfig() *Config {
	return &Config{PageSize: service.DefaultPageLimit}
}

func (c *Config) applyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = service.DefaultPageLimit
	}
}

func (c *Config) validate() error {
	if c.PageSize < service.MinPageLimit || c.PageSize > service.MaxPageLimit {
		return fmt.Errorf("%w: page size must be between %d and %d, got %d",
			ErrInvalidConfig, service.MinPageLimit, service.MaxPageLimit, c.PageSize)
	}
	if c.BasePath != "" && (!strings.HasPrefix(c.BasePath, "/") || strings.HasSuffix(c.BasePath, "/")) {
		return fmt.Errorf("%w: base path %q must start with \"/\" and not end with one", ErrInvalidConfig, c.BasePath)
	}
	return nil
}
