package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"howett.net/plist"
)

// launchdPlist is the on-disk shape consumed by launchd. KeepAlive is either
// a bool or a {SuccessfulExit: false} dict depending on the run policy.
type launchdPlist struct {
	Label             string   `plist:"Label"`
	ProgramArguments  []string `plist:"ProgramArguments"`
	RunAtLoad         bool     `plist:"RunAtLoad"`
	KeepAlive         any      `plist:"KeepAlive,omitempty"`
	StandardOutPath   string   `plist:"StandardOutPath,omitempty"`
	StandardErrorPath string   `plist:"StandardErrorPath,omitempty"`
}

// ProgramArguments builds the launch command for a descriptor. App bundles
// go through /usr/bin/open so launchd tracks the app, not the opener.
func (d *Descriptor) ProgramArguments() []string {
	switch d.Kind {
	case KindWeb:
		browser := d.Browser
		if browser == "" {
			browser = "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		}
		return []string{browser, "--kiosk", "--no-first-run", d.Target}
	default:
		if filepath.Ext(d.Target) == ".app" {
			return []string{"/usr/bin/open", "-W", d.Target}
		}
		return []string{d.Target}
	}
}

// CompilePlist renders the descriptor as launchd XML. logDir, when set,
// routes the unit's stdout/stderr under it for the dashboard's log views.
func (d *Descriptor) CompilePlist(logDir string) ([]byte, error) {
	p := launchdPlist{
		Label:            d.Label,
		ProgramArguments: d.ProgramArguments(),
		RunAtLoad:        d.RunPolicy.RunAtLoad,
	}
	if d.RunPolicy.KeepAlive {
		if d.RunPolicy.SuccessfulExitOnly {
			p.KeepAlive = map[string]bool{"SuccessfulExit": false}
		} else {
			p.KeepAlive = true
		}
	}
	if logDir != "" {
		p.StandardOutPath = filepath.Join(logDir, d.Label+".out.log")
		p.StandardErrorPath = filepath.Join(logDir, d.Label+".err.log")
	}
	out, err := plist.MarshalIndent(p, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("marshal plist: %w", err)
	}
	return out, nil
}

// ValidatePlist checks that content parses as a launchd property list with a
// Label matching the descriptor it will replace. Used by update before any
// byte touches disk (validate-then-write).
func ValidatePlist(content []byte, wantLabel string) error {
	var p struct {
		Label            string   `plist:"Label"`
		ProgramArguments []string `plist:"ProgramArguments"`
	}
	if _, err := plist.Unmarshal(content, &p); err != nil {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("not a valid property list: %v", err)}
	}
	if p.Label == "" {
		return &ValidationError{Field: "content", Reason: "missing Label key"}
	}
	if wantLabel != "" && p.Label != wantLabel {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("Label %q does not match %q", p.Label, wantLabel)}
	}
	if len(p.ProgramArguments) == 0 {
		return &ValidationError{Field: "content", Reason: "missing ProgramArguments"}
	}
	return nil
}

// WriteFileAtomic writes content via a temp file in the same directory and
// renames it into place, so an interrupted write never leaves a partial or
// corrupt plist observable at path.
func WriteFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
