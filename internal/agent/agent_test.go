package agent

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestIsSafeLabel(t *testing.T) {
	good := []string{"com.roostd.kiosk", "a", "A-b_c.9"}
	for _, s := range good {
		if !IsSafeLabel(s) {
			t.Fatalf("expected %q to be safe", s)
		}
	}
	bad := []string{"", "a/b", `a\b`, "a..b", "..", "has space", "semi;colon", "unié"}
	for _, s := range bad {
		if IsSafeLabel(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestDeriveLabelDesktop(t *testing.T) {
	label, err := DeriveLabel("com.roostd.", KindDesktop, "/Applications/Checkout Kiosk.app")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if label != "com.roostd.checkout-kiosk" {
		t.Fatalf("unexpected label %q", label)
	}
	if !IsSafeLabel(label) {
		t.Fatalf("derived label %q not safe", label)
	}
}

func TestDeriveLabelWeb(t *testing.T) {
	label, err := DeriveLabel("com.roostd.", KindWeb, "https://status.example.com/board?x=1")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if label != "com.roostd.web-status-example-com" {
		t.Fatalf("unexpected label %q", label)
	}
}

func TestDeriveLabelEmptySlug(t *testing.T) {
	if _, err := DeriveLabel("com.roostd.", KindDesktop, "/___"); err == nil {
		t.Fatalf("expected error for underivable target")
	}
}

func TestValidateTargetDesktop(t *testing.T) {
	dir := t.TempDir()
	if err := ValidateTarget(KindDesktop, dir); err != nil {
		t.Fatalf("existing path rejected: %v", err)
	}
	if err := ValidateTarget(KindDesktop, "relative/path"); err == nil {
		t.Fatalf("relative path accepted")
	}
	if err := ValidateTarget(KindDesktop, filepath.Join(dir, "missing.app")); err == nil {
		t.Fatalf("missing path accepted")
	}
}

func TestValidateTargetWeb(t *testing.T) {
	if err := ValidateTarget(KindWeb, "https://example.com"); err != nil {
		t.Fatalf("https URL rejected: %v", err)
	}
	for _, bad := range []string{"ftp://example.com", "example.com", "https://"} {
		err := ValidateTarget(KindWeb, bad)
		if err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %T", err)
		}
	}
}

func TestErrorCode(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"not found":  {ErrNotFound, "not_found"},
		"conflict":   {ErrConflict, "conflict"},
		"validation": {&ValidationError{Field: "label", Reason: "bad"}, "validation"},
		"os":         {&OSError{Op: "load", Err: errors.New("exit status 1")}, "os_rejected"},
		"other":      {errors.New("boom"), "internal"},
	}
	for name, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("%s: got %q want %q", name, got, tc.want)
		}
	}
	if ErrorCode(nil) != "" {
		t.Fatalf("nil error should have empty code")
	}
}
