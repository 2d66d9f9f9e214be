package launchd

import "testing"

func TestParseListWithHeader(t *testing.T) {
	out := "PID\tStatus\tLabel\n" +
		"512\t0\tcom.roostd.kiosk-ui\n" +
		"-\t78\tcom.roostd.web-dashboard\n" +
		"-\t0\tcom.apple.someservice\n"
	entries := ParseList(out)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	first := entries[0]
	if first.Label != "com.roostd.kiosk-ui" || !first.HasPID || first.PID != 512 {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	second := entries[1]
	if second.HasPID || second.LastExitStatus != 78 {
		t.Fatalf("unexpected second entry: %+v", second)
	}
}

func TestParseListSkipsGarbage(t *testing.T) {
	out := "\nnot a row\nx\t\n-\t0\tcom.roostd.ok\n"
	entries := ParseList(out)
	if len(entries) != 1 || entries[0].Label != "com.roostd.ok" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestParseListEmpty(t *testing.T) {
	if got := ParseList(""); len(got) != 0 {
		t.Fatalf("expected no entries, got %+v", got)
	}
}
