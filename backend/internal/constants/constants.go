package constants

import "time"

// Extraction limits
const (
	// MaxSourceChars is the default ceiling on source text length, in characters.
	// Text above it is rejected before any request is issued.
	MaxSourceChars = 50000
)

// Edge weight bounds
const (
	MinEdgeWeight     = 1
	MaxEdgeWeight     = 8
	DefaultEdgeWeight = 2
)

// Inference defaults
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4096

	// ProbeMaxTokens caps the minimal completion used by the cloud connectivity probe
	ProbeMaxTokens = 5
	ProbePrompt    = "Respond with the word ok"

	// ProbeTimeout bounds a connectivity probe, which is never operator-cancellable
	ProbeTimeout = 30 * time.Second
)

// Provisional identifier prefixes
const (
	NodeIDPrefix = "n"
	EdgeIDPrefix = "e"
)
