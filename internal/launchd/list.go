package launchd

import (
	"strconv"
	"strings"
)

// ParseList parses `launchctl list` output. Format is three tab-separated
// columns: PID ("-" when no live process), last exit status, label. A header
// row may or may not be present depending on the OS release.
func ParseList(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pidField, statusField, label := fields[0], fields[1], fields[2]
		if pidField == "PID" && label == "Label" {
			continue // header
		}
		e := Entry{Label: label}
		if pid, err := strconv.Atoi(pidField); err == nil && pid > 0 {
			e.PID = pid
			e.HasPID = true
		} else if pidField != "-" {
			continue // not a listing row
		}
		if st, err := strconv.Atoi(statusField); err == nil {
			e.LastExitStatus = st
		}
		entries = append(entries, e)
	}
	return entries
}
