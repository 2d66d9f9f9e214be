package agent

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kind distinguishes what a descriptor launches.
type Kind string

const (
	// KindDesktop wraps an executable or .app bundle path.
	KindDesktop Kind = "desktop"
	// KindWeb wraps a browser invocation pointed at a URL.
	KindWeb Kind = "web"
)

// RunPolicy is the declarative restart policy compiled into the plist.
// It is consumed by launchd, not executed by this layer.
type RunPolicy struct {
	KeepAlive          bool `json:"keep_alive"`
	RunAtLoad          bool `json:"run_at_load"`
	SuccessfulExitOnly bool `json:"successful_exit_only"`
}

// Descriptor is the durable record of one managed launchable unit.
// Label is the stable identity key and is immutable once created.
type Descriptor struct {
	Label          string    `json:"label"`
	Kind           Kind      `json:"kind"`
	Target         string    `json:"target"`            // abs path (desktop) or URL (web)
	Browser        string    `json:"browser,omitempty"` // resolved browser executable, web only
	RunPolicy      RunPolicy `json:"run_policy"`
	DescriptorPath string    `json:"descriptor_path"`
	CreatedAt      time.Time `json:"created_at"`
	Installed      bool      `json:"installed"`
}

// PlistPath returns the deterministic plist location for label under dir.
func PlistPath(dir, label string) string {
	return filepath.Join(dir, label+".plist")
}

// IsSafeLabel validates labels used in filenames and launchctl arguments.
// Allowed characters: A-Za-z0-9 . _ - with no ".." and no path separators.
func IsSafeLabel(s string) bool {
	if s == "" || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}

// DeriveLabel computes the default label for a target when none was
// requested. Collisions on a derived label are rejected by the compiler,
// never suffixed.
func DeriveLabel(prefix string, kind Kind, target string) (string, error) {
	switch kind {
	case KindDesktop:
		base := filepath.Base(target)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		slug := slugify(base)
		if slug == "" {
			return "", &ValidationError{Field: "target", Reason: "cannot derive label from target"}
		}
		return prefix + slug, nil
	case KindWeb:
		u, err := url.Parse(target)
		if err != nil || u.Hostname() == "" {
			return "", &ValidationError{Field: "target", Reason: "cannot derive label from URL"}
		}
		return prefix + "web-" + slugify(u.Hostname()), nil
	default:
		return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// ValidateTarget checks that a target is usable before anything is written:
// an existing absolute path for desktop, a well-formed http(s) URL for web.
func ValidateTarget(kind Kind, target string) error {
	switch kind {
	case KindDesktop:
		if !filepath.IsAbs(target) {
			return &ValidationError{Field: "target", Reason: "must be an absolute path"}
		}
		if _, err := os.Stat(target); err != nil {
			return &ValidationError{Field: "target", Reason: fmt.Sprintf("not accessible: %v", err)}
		}
		return nil
	case KindWeb:
		u, err := url.Parse(target)
		if err != nil {
			return &ValidationError{Field: "target", Reason: "malformed URL"}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return &ValidationError{Field: "target", Reason: "URL scheme must be http or https"}
		}
		if u.Hostname() == "" {
			return &ValidationError{Field: "target", Reason: "URL host required"}
		}
		return nil
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
}
