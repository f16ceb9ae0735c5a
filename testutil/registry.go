package testutil

import (
	"time"

	"github.com/parley-ai/parley"
)

// NewTestRegistry returns a Registry with long timeout and panic recovery
// enabled, suitable for tests. Registration errors panic (tests define their
// own unique tool names).
func NewTestRegistry(tools ...parley.Tool) *parley.Registry {
	reg := parley.NewRegistry(
		parley.WithDefaultTimeout(30*time.Second),
		parley.WithRecoverPanics(true),
	)
	reg.MustRegister(tools...)
	return reg
}
