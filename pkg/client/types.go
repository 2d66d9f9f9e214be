package client

import "time"

// RunPolicy mirrors the declarative restart policy of a descriptor.
type RunPolicy struct {
	KeepAlive          bool `json:"keep_alive"`
	RunAtLoad          bool `json:"run_at_load"`
	SuccessfulExitOnly bool `json:"successful_exit_only"`
}

// Agent is the wire shape of a descriptor.
type Agent struct {
	Label          string    `json:"label"`
	Kind           string    `json:"kind"`
	Target         string    `json:"target"`
	Browser        string    `json:"browser,omitempty"`
	RunPolicy      RunPolicy `json:"run_policy"`
	DescriptorPath string    `json:"descriptor_path"`
	CreatedAt      time.Time `json:"created_at"`
	Installed      bool      `json:"installed"`
}

// Snapshot is the wire shape of a per-label status.
type Snapshot struct {
	Label          string `json:"label"`
	Loaded         bool   `json:"loaded"`
	Running        bool   `json:"running"`
	PID            *int   `json:"pid,omitempty"`
	LastExitStatus *int   `json:"last_exit_status,omitempty"`
}

// IsRunning is the derived field the dashboard keys on.
func (s Snapshot) IsRunning() bool { return s.Loaded && s.Running }

// CreateRequest is the body of create/create-web/install.
type CreateRequest struct {
	Label     string    `json:"label,omitempty"`
	Target    string    `json:"target"`
	Browser   string    `json:"browser,omitempty"`
	RunPolicy RunPolicy `json:"run_policy"`
}

// TestResult reports a bounded trial start.
type TestResult struct {
	Label          string        `json:"label"`
	ReachedRunning bool          `json:"reached_running"`
	PID            int           `json:"pid,omitempty"`
	Crashed        bool          `json:"crashed"`
	LastExitStatus int           `json:"last_exit_status"`
	Window         time.Duration `json:"window"`
}

// ExportResult is a downloadable descriptor rendering.
type ExportResult struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// APIError is a structured failure from the daemon: a stable Code plus the
// human-readable Message.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
