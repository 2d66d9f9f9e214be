package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testDescriptor() Descriptor {
	return Descriptor{
		Label:     "com.roostd.kiosk",
		Kind:      KindDesktop,
		Target:    "/Applications/Kiosk.app",
		RunPolicy: RunPolicy{KeepAlive: true, RunAtLoad: true},
		CreatedAt: time.Now().UTC(),
	}
}

func TestProgramArgumentsAppBundle(t *testing.T) {
	d := testDescriptor()
	args := d.ProgramArguments()
	if args[0] != "/usr/bin/open" || args[1] != "-W" || args[2] != d.Target {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestProgramArgumentsPlainBinary(t *testing.T) {
	d := testDescriptor()
	d.Target = "/usr/local/bin/kioskd"
	args := d.ProgramArguments()
	if len(args) != 1 || args[0] != d.Target {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestProgramArgumentsWeb(t *testing.T) {
	d := Descriptor{Label: "com.roostd.web-ex", Kind: KindWeb, Target: "https://example.com"}
	args := d.ProgramArguments()
	if !strings.Contains(args[0], "Chrome") {
		t.Fatalf("expected default browser, got %q", args[0])
	}
	if args[len(args)-1] != d.Target {
		t.Fatalf("URL must be last arg, got %v", args)
	}
	d.Browser = "/opt/firefox"
	if got := d.ProgramArguments()[0]; got != "/opt/firefox" {
		t.Fatalf("browser override ignored, got %q", got)
	}
}

func TestCompileAndValidateRoundTrip(t *testing.T) {
	d := testDescriptor()
	content, err := d.CompilePlist("/tmp/logs")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(string(content), "<key>Label</key>") {
		t.Fatalf("output does not look like XML plist:\n%s", content)
	}
	if !strings.Contains(string(content), d.Label) {
		t.Fatalf("label missing from plist")
	}
	if err := ValidatePlist(content, d.Label); err != nil {
		t.Fatalf("compiled plist failed validation: %v", err)
	}
}

func TestCompileKeepAliveVariants(t *testing.T) {
	d := testDescriptor()
	d.RunPolicy = RunPolicy{KeepAlive: true, SuccessfulExitOnly: true}
	content, err := d.CompilePlist("")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(string(content), "SuccessfulExit") {
		t.Fatalf("expected SuccessfulExit dict in plist:\n%s", content)
	}

	d.RunPolicy = RunPolicy{}
	content, err = d.CompilePlist("")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if strings.Contains(string(content), "KeepAlive") {
		t.Fatalf("KeepAlive emitted for policy that does not keep alive")
	}
}

func TestValidatePlistRejects(t *testing.T) {
	if err := ValidatePlist([]byte("not a plist"), "x"); err == nil {
		t.Fatalf("garbage accepted")
	}
	d := testDescriptor()
	content, err := d.CompilePlist("")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := ValidatePlist(content, "com.roostd.other"); err == nil {
		t.Fatalf("label mismatch accepted")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.plist")
	if err := WriteFileAtomic(path, []byte("one")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "two" {
		t.Fatalf("got %q", got)
	}
	// No temp droppings left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, found %d entries", len(entries))
	}
}

func TestWriteFileAtomicFailureKeepsPrevious(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind root")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "a.plist")
	if err := WriteFileAtomic(path, []byte("good")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// A read-only directory makes the temp-file creation fail before any
	// byte of the target is touched.
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	if err := WriteFileAtomic(path, []byte("bad")); err == nil {
		t.Fatalf("write into read-only dir succeeded")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "good" {
		t.Fatalf("previous contents lost: %q", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("failed write left droppings: %d entries", len(entries))
	}
}
