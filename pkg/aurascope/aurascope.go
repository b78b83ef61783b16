// Package aurascope provides the public API for embedding the
// inspection daemon. This is the stable surface for external
// consumers; see internal/runtime for full documentation.
package aurascope

import (
	"github.com/aurascope/aurascope/internal/runtime"
)

// Inspector is the assembled inspection daemon.
type Inspector = runtime.Inspector

// Option is a functional option for configuring an Inspector.
type Option = runtime.Option

// New creates an Inspector with the given options.
// Example:
//
//	insp, err := aurascope.New(
//	    aurascope.WithConfigFile("config.yaml"),
//	)
var New = runtime.New

// Configuration options
var (
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile
	WithLogger     = runtime.WithLogger

	// Settings storage
	WithSettingsStore  = runtime.WithSettingsStore
	WithMemorySettings = runtime.WithMemorySettings

	// Capture bridge
	WithBridgeClient = runtime.WithBridgeClient
)
