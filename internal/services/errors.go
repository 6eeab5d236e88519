package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	// ErrConflict marks a playlist edit submitted against a stale version.
	// It is surfaced to the control-surface caller and never merged.
	ErrConflict = errors.New("version conflict")
	// ErrFatalStorage marks shared state (playlist, watch progress) that is
	// unreadable or corrupt at startup. The playback loop refuses to guess
	// and halts instead of streaming from an unknown state.
	ErrFatalStorage = errors.New("fatal storage error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsConflict reports whether err carries the stale-version marker.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsFatalStorage reports whether err carries the unrecoverable-storage marker.
func IsFatalStorage(err error) bool {
	return errors.Is(err, ErrFatalStorage)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
