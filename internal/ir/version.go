package ir

// Version constants for the store schema and the tool.
const (
	// SchemaVersion is the services table layout version.
	SchemaVersion = 1

	// ToolVersion is reported by zugdienste --version.
	ToolVersion = "0.1.0"
)
