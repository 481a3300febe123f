package main

import "github.com/alecthomas/kong"

// Globals are flags shared by every command.
type Globals struct {
	Config   string `short:"c" help:"Config file path (default: ./gatedagent.toml, then ~/.config/gatedagent/config.toml)" type:"path"`
	LogLevel string `help:"Override logging.level"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Run     RunCmd     `cmd:"" help:"Answer a single query"`
	Serve   ServeCmd   `cmd:"" help:"Serve runs over NATS and HTTP"`
	Init    InitCmd    `cmd:"" help:"Write a default config file"`
	Index   IndexCmd   `cmd:"" help:"Build the local knowledge base index"`
	Replay  ReplayCmd  `cmd:"" help:"Replay a stored run trace"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// RunCmd answers one query and prints the result.
type RunCmd struct {
	Query    []string `arg:"" help:"The question to answer"`
	RunID    string   `help:"Run identifier (default: random UUID)"`
	Stream   bool     `help:"Stream the final answer as it is generated"`
	JSON     bool     `help:"Print the full result as JSON"`
	MaxSteps int      `help:"Override agent.max_steps"`
	NoGate   bool     `help:"Disable the evidence gate"`
	NoSearch bool     `help:"Disable the Search tool"`
	NoSafety bool     `help:"Disable the safety pre-filter"`
	Quiet    bool     `short:"q" help:"Do not print steps as they complete"`
}

// ServeCmd runs the NATS and HTTP transports.
type ServeCmd struct {
	NoNATS bool `help:"Do not subscribe to NATS"`
	NoHTTP bool `help:"Do not start the HTTP API"`
}

// InitCmd writes a starting config.
type InitCmd struct {
	Path     string `arg:"" optional:"" default:"gatedagent.toml" help:"Where to write the config" type:"path"`
	Force    bool   `help:"Replace an existing file"`
	Provider string `help:"Web search provider (serper, brave, duckduckgo)"`
}

// IndexCmd builds the local index.
type IndexCmd struct {
	Force bool   `short:"f" help:"Rebuild even when the index is not empty"`
	Dir   string `help:"Override retrieval.docs_dir" type:"path"`
}

// ReplayCmd replays stored traces.
type ReplayCmd struct {
	Target  string `arg:"" optional:"" help:"Run ID or trace file path (omit to list runs)"`
	Verbose int    `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool   `help:"Disable pager for output"`
	Follow  bool   `short:"f" help:"Re-render as the trace file changes"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
