package logging

import (
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// sendJournal forwards a summary line to journald. Field names are upper-cased
// as journald requires; failures are ignored because the file and console
// sinks already hold the record.
func sendJournal(msg string, fields map[string]string) {
	if !journal.Enabled() {
		return
	}

	vars := make(map[string]string, len(fields)+1)
	vars["SYSLOG_IDENTIFIER"] = "opentune-agent"
	for k, v := range fields {
		vars[journalField(k)] = v
	}

	priority := journal.PriInfo
	if fields["status"] == "failed" {
		priority = journal.PriErr
	}
	_ = journal.Send(msg, priority, vars)
}

func journalField(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return "OPENTUNE_" + b.String()
}
