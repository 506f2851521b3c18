// Package ui renders provisioning progress on stderr, keeping stdout clean
// for the JSON envelope.
package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

type Spinner struct {
	*spinner.Spinner
	msg string
}

// NewSpinner creates a spinner with the given message. On a non-interactive
// stderr it returns nil, and every method tolerates a nil receiver, so
// callers never need to branch on interactivity.
func NewSpinner(msg string) *Spinner {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	s := &Spinner{
		spinner.New(
			spinner.CharSets[14],
			200*time.Millisecond,
			spinner.WithHiddenCursor(true),
			spinner.WithWriter(os.Stderr),
			spinner.WithSuffix(" "+msg),
		),
		msg,
	}
	s.Start()
	return s
}

// UpdateMessage updates the spinner message.
func (s *Spinner) UpdateMessage(msg string) {
	if s == nil {
		return
	}
	s.Spinner.Suffix = " " + msg
	s.msg = msg
}

// Success stops the spinner and prints a success message.
func (s *Spinner) Success(msg ...string) {
	if s == nil {
		return
	}
	if len(msg) == 0 {
		msg = []string{s.msg}
	}
	s.Spinner.FinalMSG = fmt.Sprintf("%s %s\n", color.HiGreenString("✓"), msg[0])
	s.Stop()
}

// Fail stops the spinner and prints a failure message.
func (s *Spinner) Fail(msg ...string) {
	if s == nil {
		return
	}
	if len(msg) == 0 {
		msg = []string{s.msg}
	}
	s.Spinner.FinalMSG = fmt.Sprintf("%s %s\n", color.HiRedString("✗"), msg[0])
	s.Stop()
}
