// Package models - command_log.go defines CommandLogEntry, one audited command line
// such as "PROJECT:REGISTER: example".
package models

import "time"

// CommandLogEntry is one row of the command_log table
type CommandLogEntry struct {
	ID        int64     `db:"id"`
	Source    string    `db:"source"` // account name of the caller
	SourceID  string    `db:"source_id"`
	Verb      string    `db:"verb"`
	Line      string    `db:"line"`
	CreatedAt time.Time `db:"created_at"`
}
