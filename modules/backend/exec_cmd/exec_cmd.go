package exec_cmd

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Result contains command exec Result
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Lookup resolves command on the execution path
func Lookup(command string) (string, error) {
	return exec.LookPath(command)
}

// Exec runs command and collects its output
func Exec(command string, args ...string) (Result, error) {

	var stderr, stdout bytes.Buffer

	cmd := exec.Command(command, args...)

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Set environment variables
	cmd.Env = os.Environ()

	err := cmd.Run()

	return Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}, err
}

// ExecTo runs command streaming its stdout into w. Extra env entries are
// appended to the current environment. Stderr is returned trimmed.
func ExecTo(w io.Writer, env []string, command string, args ...string) (Result, error) {

	var stderr bytes.Buffer

	cmd := exec.Command(command, args...)

	cmd.Stdout = w
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), env...)

	err := cmd.Run()

	res := Result{Stderr: strings.TrimSpace(stderr.String()), ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	return res, err
}
