package tui

import "github.com/inovacc/binderlaunch/internal/session"

// SnapshotMsg carries the session state after a change
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// LogMsg carries build log text
type LogMsg struct {
	Text string
}

// DoneMsg signals that the session has ended
type DoneMsg struct {
	Snapshot session.Snapshot
	Error    error
}
