package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPipelineStep  = errors.New("pipeline step failed")
	ErrDBOperation   = errors.New("db operation failed")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap joins stage, operation and message into a readable prefix and tags the
// result with marker so callers can classify it with errors.Is. A nil marker
// means ErrPipelineStep.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrPipelineStep
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether a failure is worth retrying on a later scan
// instead of being recorded as permanently processed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return "scan failure"
	}
	return strings.Join(kept, ": ")
}
