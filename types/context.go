package types

// RunContext carries the process-wide run configuration. It is constructed
// once at startup from flags and environment and passed explicitly to every
// stage; nothing mutates it afterwards.
type RunContext struct {
	// DryRun disables every mutating call. Each would-be mutation is
	// logged as "would perform: ..." and reported as a success.
	DryRun bool
	// NonInteractive makes every confirmation return its default answer.
	NonInteractive bool
	// ForceYes makes every confirmation answer affirmatively.
	ForceYes bool
	// Quiet suppresses the interactive stream. The durable log is always
	// written.
	Quiet bool
	// Debug lowers the log level to debug.
	Debug bool
	// NoColor disables colored output on the interactive stream.
	NoColor bool
	// LogPath is the destination of the durable log.
	LogPath string
}

// LogLevel returns the zerolog level name implied by the context.
func (c RunContext) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return "info"
}
