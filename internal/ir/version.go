package ir

// Version constants for the TQL language and engine.
const (
	// LanguageVersion is the TQL grammar version.
	LanguageVersion = "1"

	// EngineVersion is the TQL engine version.
	EngineVersion = "0.1.0"
)
