// Package aggerr defines the error kinds used throughout the
// aggregator (spec §7). Components never return bare errors across a
// component boundary; they wrap the underlying cause in one of these
// kinds so callers can branch on Kind instead of matching strings.
package aggerr

import (
	"errors"
	"fmt"
)

// Kind is one of the six error kinds spec §7 names.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindSourceUnavailable  Kind = "source_unavailable"
	KindSourceTimeout      Kind = "source_timeout"
	KindDecoder            Kind = "decoder_error"
	KindCache              Kind = "cache_error"
	KindInternal           Kind = "internal_error"
)

// Error wraps an underlying cause with a kind and enough context to
// log safely (source tool, path) without leaking secrets.
type Error struct {
	Cause  error
	Kind   Kind
	Source string // source tool or component name, optional
	Path   string // file/db path involved, optional
	Msg    string
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	if e.Source != "" {
		s = fmt.Sprintf("%s [source=%s]", s, e.Source)
	}
	if e.Cause != nil {
		s = fmt.Sprintf("%s: %v", s, e.Cause)
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

func new(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Validation wraps cause (may be nil) as a validation error.
func Validation(msg string, cause error) *Error { return new(KindValidation, msg, cause) }

// SourceUnavailable wraps cause as a source-unavailable error tagged
// with the source tool name.
func SourceUnavailable(source, msg string, cause error) *Error {
	e := new(KindSourceUnavailable, msg, cause)
	e.Source = source
	return e
}

// SourceTimeout wraps cause as a source-timeout error, treated
// identically to SourceUnavailable by callers per spec §7.
func SourceTimeout(source, msg string, cause error) *Error {
	e := new(KindSourceTimeout, msg, cause)
	e.Source = source
	return e
}

// Decoder wraps cause as a decoder error for a single malformed record.
func Decoder(path, msg string, cause error) *Error {
	e := new(KindDecoder, msg, cause)
	e.Path = path
	return e
}

// Cache wraps cause as a cache read/write failure.
func Cache(msg string, cause error) *Error { return new(KindCache, msg, cause) }

// Internal wraps cause as an unexpected internal error.
func Internal(msg string, cause error) *Error { return new(KindInternal, msg, cause) }

// KindOf returns the Kind carried by err if it (or something it wraps)
// is an *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err's kind equals k.
func IsKind(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

// Contained reports whether kind is one that must never fail a whole
// request — source-level errors are contained to that source's branch.
func Contained(k Kind) bool {
	switch k {
	case KindSourceUnavailable, KindSourceTimeout, KindDecoder, KindCache:
		return true
	default:
		return false
	}
}
