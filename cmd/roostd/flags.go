package main

import "time"

// Flag structs decouple cobra wiring from command logic for testing.

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags selects the daemon the CLI talks to.
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Insecure   bool
}

// CreateFlags holds flags for create/create-web/install.
type CreateFlags struct {
	Label              string
	Target             string
	Browser            string
	KeepAlive          bool
	RunAtLoad          bool
	SuccessfulExitOnly bool
	API                APIFlags
}

// LabelFlags holds flags for label-addressed verbs.
type LabelFlags struct {
	Label string
	API   APIFlags
}

// UpdateFlags holds flags for the update command.
type UpdateFlags struct {
	Label string
	File  string
	API   APIFlags
}

// ExportFlags holds flags for the export command.
type ExportFlags struct {
	Label string
	Out   string
	API   APIFlags
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}
