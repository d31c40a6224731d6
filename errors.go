package arbor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind = errors.New("arbor: no kind registered for type")
	ErrEmptyKey    = errors.New("arbor: entity has an empty key")
	ErrClosed      = errors.New("arbor: backend closed")
)

// TranslationError is a fatal failure to translate a value at Path.
type TranslationError struct {
	Path Path
	Msg  string
	Err  error
}

func translationErrf(path Path, err error, format string, args ...any) error {
	return &TranslationError{path, fmt.Sprintf(format, args...), err}
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

func (e *TranslationError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Path.String())
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// atPath qualifies errors bubbling out of a child load with the child's
// position within the parent.
func atPath(err error, prefix Path) error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TranslationError); ok {
		return &TranslationError{te.Path.prepend(prefix), te.Msg, te.Err}
	}
	return &TranslationError{prefix, "", err}
}

// savedAt qualifies errors bubbling out of a child save. Save paths are
// absolute, so an error that already carries one is passed through.
func savedAt(err error, path Path) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*TranslationError); ok {
		return err
	}
	return &TranslationError{path, "", err}
}

// NotFoundError is returned when a required field is absent from a *Map.
type NotFoundError struct {
	Field string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("field %q not found", e.Field)
}

// NotTransportableError is returned when a deferred value is serialized
// without being materialized first, or when its materialized snapshot cannot
// be serialized.
type NotTransportableError struct {
	What string
	Err  error
}

func (e *NotTransportableError) Unwrap() error {
	return e.Err
}

func (e *NotTransportableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("arbor: %s is not transportable: %v", e.What, e.Err)
	}
	return fmt.Sprintf("arbor: %s is not transportable, materialize a snapshot first", e.What)
}

// DataError reports stored bytes that cannot be decoded.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	var data string
	if n <= prefixLen+suffixLen {
		data = fmt.Sprintf("(%d) %x", n, e.Data)
	} else {
		data = fmt.Sprintf("(%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	if e.Err != nil {
		return fmt.Sprintf("%s at %d: %v: %s", e.Msg, e.Off, e.Err, data)
	}
	return fmt.Sprintf("%s at %d: %s", e.Msg, e.Off, data)
}

// EntityError attributes a failure to one entity of a batch.
type EntityError struct {
	Key Key
	Err error
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("arbor: %v: %v", e.Key, e.Err)
}

// BackendError wraps a failure reported by the storage backend for a whole
// batch.
type BackendError struct {
	Op  Op
	N   int
	Err error
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("arbor: backend %v of %d entities failed: %v", e.Op, e.N, e.Err)
}

// PanicError is the failure of a deferred computation that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("arbor: deferred computation panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

var errZeroDeferred = errors.New("arbor: zero Deferred, construct it with Defer")

var errTxNotWritable = errors.New("arbor: tx not writable")
