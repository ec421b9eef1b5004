// Package errs is the error taxonomy of the graph builder. Every error that
// aborts a run is an *Error carrying one Kind; callers branch on it with
// errors.Is against the Err* sentinels.
package errs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is the category of a failure.
type Kind string

const (
	KindInvalidAlphabet Kind = "invalid_alphabet_symbol"
	KindSpillIO         Kind = "spill_io"
	KindFatalIO         Kind = "fatal_io"
	KindColorOverflow   Kind = "color_overflow"
	KindInvariant       Kind = "internal_invariant_violation"
	KindConfiguration   Kind = "configuration"
	KindCanceled        Kind = "canceled"
)

// Sentinels for errors.Is.
var (
	ErrInvalidAlphabetSymbol      = &Error{Kind: KindInvalidAlphabet}
	ErrSpillIO                    = &Error{Kind: KindSpillIO}
	ErrFatalIO                    = &Error{Kind: KindFatalIO}
	ErrColorOverflow              = &Error{Kind: KindColorOverflow}
	ErrInternalInvariantViolation = &Error{Kind: KindInvariant}
	ErrConfiguration              = &Error{Kind: KindConfiguration}
	ErrCanceled                   = &Error{Kind: KindCanceled}
)

// Error provides a kind, the failing operation and optional context such as
// the bucket id or the k-mer involved.
type Error struct {
	Kind    Kind
	Op      string
	Msg     string
	Cause   error
	Context map[string]interface{}
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: %s", e.Kind, e.Op, e.Msg)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%s=%v", k, e.Context[k])
		}
		sb.WriteByte(')')
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the sentinels work with
// errors.Is regardless of the context attached.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithContext adds a key to the error context and returns e.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithBucket records the bucket the failure happened in.
func (e *Error) WithBucket(bucket int) *Error {
	return e.WithContext("bucket", bucket)
}

// WithKmer records the packed k-mer the failure is about.
func (e *Error) WithKmer(kmer uint64) *Error {
	return e.WithContext("kmer", fmt.Sprintf("%#x", kmer))
}

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

func Wrap(err error, kind Kind, op, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Cause: err}
}

// Configuration reports an invalid configuration value.
func Configuration(op, format string, args ...interface{}) *Error {
	return Newf(KindConfiguration, op, format, args...)
}

// Invariant reports a broken internal invariant; it always means a bug.
func Invariant(op string, bucket int, kmer uint64, format string, args ...interface{}) *Error {
	return Newf(KindInvariant, op, format, args...).WithBucket(bucket).WithKmer(kmer)
}

// ColorOverflow reports that more distinct color sets than ceiling were
// requested; count is the number of sets at the moment it was exceeded.
func ColorOverflow(op string, ceiling, count int) *Error {
	return Newf(KindColorOverflow, op, "distinct color sets exceed ceiling %d", ceiling).
		WithContext("ceiling", ceiling).
		WithContext("count", count)
}

// Canceled converts a context error into the taxonomy, passing other errors
// through unchanged.
func Canceled(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return Wrap(err, KindCanceled, op, "run canceled")
	}
	return err
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
