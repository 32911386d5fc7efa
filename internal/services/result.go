package services

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

// Result reports what a primary mutation did. A mutation that found its
// content gone returns Applied=false with a SkipReason and a nil error.
type Result struct {
	Op         string `json:"op"`
	Applied    bool   `json:"applied"`
	SkipReason string `json:"skipReason,omitempty"`
	PostID     string `json:"postId,omitempty"`
	Notified   bool   `json:"notified"`
}

func applied(op string) Result { return Result{Op: op, Applied: true} }

func skipped(op, reason string) Result { return Result{Op: op, SkipReason: reason} }

// Outcome summarises a best-effort fan-out. It is already logged, counted and
// journaled when returned, so callers may drop it.
type Outcome struct {
	Operation string
	PostID    string
	// Planned is the number of notifications built; Written how many committed.
	Planned int
	Written int
	// Skipped lists recoverable misses, such as a parent post that no longer exists.
	Skipped []string
	Err     error
}

// OK reports whether every planned notification was written.
func (o Outcome) OK() bool { return o.Err == nil && o.Written == o.Planned }

func (o Outcome) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("operation", o.Operation),
		slog.String("post_id", o.PostID),
		slog.Int("planned", o.Planned),
		slog.Int("written", o.Written),
	}
	if len(o.Skipped) > 0 {
		attrs = append(attrs, slog.Any("skipped", o.Skipped))
	}
	if o.Err != nil {
		attrs = append(attrs, slog.String("error", o.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// PartialWriteError is returned by the batched writer when a commit group
// fails. Groups before it stay committed; nothing is rolled back.
type PartialWriteError struct {
	// Committed and Total count commit groups; Written counts the writes in
	// the committed groups.
	Committed int
	Total     int
	Written   int
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("batch group %d of %d failed after %d writes: %v", e.Committed+1, e.Total, e.Written, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// requireActor is the precondition every mutation checks before any I/O.
func requireActor(actorID string) error {
	if actorID == "" {
		return apperror.ErrUnauthorized
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperror.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// writtenBy returns how many writes a failed or successful commit persisted.
func writtenBy(err error, total int) int {
	if err == nil {
		return total
	}
	var pw *PartialWriteError
	if errors.As(err, &pw) {
		return pw.Written
	}
	return 0
}
