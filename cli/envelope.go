package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/envagent/envboot/fault"
)

// Version is the envelope schema version, not the binary version.
const envelopeVersion = "1.0.0"

type envelopeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type envelopeMetrics struct {
	ElapsedMS int64 `json:"elapsed_ms"`
}

// envelope is the single JSON document every tool writes to stdout.
type envelope struct {
	OK      bool            `json:"ok"`
	Data    any             `json:"data"`
	Error   *envelopeError  `json:"error"`
	Metrics envelopeMetrics `json:"metrics"`
	Version string          `json:"version"`
}

func newEnvelope(data any, err error, started time.Time) envelope {
	e := envelope{
		Data:    data,
		Metrics: envelopeMetrics{ElapsedMS: time.Since(started).Milliseconds()},
		Version: envelopeVersion,
	}
	if err != nil {
		e.Error = &envelopeError{
			Type:    string(fault.KindOf(err)),
			Message: err.Error(),
		}
	} else {
		e.OK = true
	}
	return e
}

func writeEnvelope(w io.Writer, e envelope) error {
	enc := json.NewEncoder(w)
	return enc.Encode(e)
}

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// emit writes the envelope to stdout and converts the error into the
// conventional exit code: nil for 0, an exitError otherwise.
func emit(w io.Writer, data any, err error, started time.Time) error {
	if writeErr := writeEnvelope(w, newEnvelope(data, err, started)); writeErr != nil {
		return &exitError{code: 1}
	}
	if err == nil {
		return nil
	}
	return &exitError{code: fault.ExitCode(err)}
}

// emitFlat is emit for the tools whose contract is exit 0/1 only.
func emitFlat(w io.Writer, data any, err error, started time.Time) error {
	if writeErr := writeEnvelope(w, newEnvelope(data, err, started)); writeErr != nil {
		return &exitError{code: 1}
	}
	if err == nil {
		return nil
	}
	return &exitError{code: 1}
}
