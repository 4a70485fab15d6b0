package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
)

// FailureKind classifies a generation failure.
type FailureKind string

const (
	KindTransport FailureKind = "transport"
	KindTimeout   FailureKind = "timeout"
	KindStatus    FailureKind = "status"
	KindEmpty     FailureKind = "empty"
	KindCanceled  FailureKind = "canceled"
)

// Failure is the error returned by a Generator.
type Failure struct {
	Kind   FailureKind
	Status int
	Err    error
}

func (f *Failure) Error() string {
	switch {
	case f.Status != 0:
		return fmt.Sprintf("generation %s failure (status %d): %v", f.Kind, f.Status, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("generation %s failure: %v", f.Kind, f.Err)
	default:
		return fmt.Sprintf("generation %s failure", f.Kind)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether the same request may succeed on another attempt.
func (f *Failure) Retryable() bool {
	switch f.Kind {
	case KindTransport, KindTimeout:
		return true
	case KindStatus:
		return f.Status == http.StatusTooManyRequests || f.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// classify turns a client error into a Failure. parent is the caller's context,
// used to tell a per-call timeout from caller cancellation.
func classify(parent context.Context, err error) *Failure {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Failure{Kind: KindStatus, Status: apiErr.StatusCode, Err: err}
	}
	if parent.Err() != nil {
		return &Failure{Kind: KindCanceled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: KindTimeout, Err: err}
	}
	return &Failure{Kind: KindTransport, Err: err}
}
