package ir

// Version constants for the program representation and engine.
const (
	// IRVersion is the program representation schema version.
	IRVersion = "1"

	// EngineVersion is the banish engine version.
	EngineVersion = "0.1.0"
)
