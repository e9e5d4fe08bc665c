package strip

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ProgramError reports a strip program that exited with a failure.
type ProgramError struct {
	Program  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProgramError) Error() string {
	msg := fmt.Sprintf("strip program %q exited with status %d", e.Program, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *ProgramError) Unwrap() error {
	return e.Err
}

// ProgramStripper pipes the markup through a shell command and keeps its
// standard output. There is no timeout: a program that hangs blocks the run.
type ProgramStripper struct {
	program  string
	raw      strings.Builder
	stripped string
}

func NewProgramStripper(program string) *ProgramStripper {
	return &ProgramStripper{program: program}
}

func (s *ProgramStripper) Feed(markup string) {
	s.raw.WriteString(markup)
}

func (s *ProgramStripper) Close() error {
	var stdout, stderr bytes.Buffer

	cmd := exec.Command("sh", "-c", s.program)
	cmd.Stdin = strings.NewReader(s.raw.String())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		progErr := &ProgramError{Program: s.program, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			progErr.ExitCode = exitErr.ExitCode()
		}
		return progErr
	}

	s.stripped = stdout.String()
	return nil
}

func (s *ProgramStripper) Data() string {
	return s.stripped
}

func (s *ProgramStripper) Reset() {
	s.raw.Reset()
	s.stripped = ""
}
