package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransport   = errors.New("transport error")
	ErrMalformed   = errors.New("malformed data")
	ErrNotFound    = errors.New("not found")
	ErrCancelled   = errors.New("cancelled")
	ErrFatalConfig = errors.New("fatal configuration error")
)

// Wrap builds an error that carries stage context and is tagged with marker
// so callers can classify it with errors.Is. marker should be one of the
// sentinels above; nil means ErrTransport.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err must abort a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalConfig)
}

// KindOf maps an error to the failure kind recorded in a RunOutcome.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrMalformed):
		return KindMalformed
	default:
		return KindTransport
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "harvest failure"
	}
	return strings.Join(parts, ": ")
}
