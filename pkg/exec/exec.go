package exec

import (
	"log/slog"
	"os/exec"
)

var debug bool

// SetCommandDebug makes every command log its name and arguments before it runs
func SetCommandDebug(v bool) {
	debug = v
}

// Command returns the [Cmd] struct to execute the named program with
func Command(name string, arg ...string) *exec.Cmd {
	if debug {
		slog.Debug("executing command", "name", name, "args", arg)
	}

	return exec.Command(name, arg...)
}

// LookPath searches for an executable named file in the directories named by PATH
func LookPath(file string) (string, error) {
	return exec.LookPath(file)
}
