// Package rpath implements the canonical-path and digest primitives shared by
// every other package in resourcecore: path normalisation, 64-bit path
// hashing, hex digest encoding, constant-time digest comparison and the
// pluggable decrypt hook. It is the lowest leaf in the dependency graph (no
// resourcecore package imports it that rpath itself depends on) and mirrors
// the role of dlib's resource_util.
//
// © 2025 resourcecore authors. MIT License.
package rpath

import "errors"

// Result is the stable result/error enum shared across every layer of
// resourcecore. Strings are fixed — do not rename existing values, callers
// may match on Result.String output.
type Result int

const (
	OK Result = iota
	InvalidData
	DDFError
	ResourceNotFound
	MissingFileExtension
	AlreadyRegistered
	Inval
	UnknownResourceType
	OutOfMemory
	IOError
	NotLoaded
	OutOfResources
	StreamBufferTooSmall
	FormatError
	ConstantError
	NotSupported
	ResourceLoopError
	Pending
	VersionMismatch
	SignatureMismatch
	UnknownError
	AlreadyStored
	LengthMismatch
	Mismatch
)

var resultNames = map[Result]string{
	OK:                    "OK",
	InvalidData:           "INVALID_DATA",
	DDFError:              "DDF_ERROR",
	ResourceNotFound:      "RESOURCE_NOT_FOUND",
	MissingFileExtension:  "MISSING_FILE_EXTENSION",
	AlreadyRegistered:     "ALREADY_REGISTERED",
	Inval:                 "INVAL",
	UnknownResourceType:   "UNKNOWN_RESOURCE_TYPE",
	OutOfMemory:           "OUT_OF_MEMORY",
	IOError:               "IO_ERROR",
	NotLoaded:             "NOT_LOADED",
	OutOfResources:        "OUT_OF_RESOURCES",
	StreamBufferTooSmall:  "STREAMBUFFER_TOO_SMALL",
	FormatError:           "FORMAT_ERROR",
	ConstantError:         "CONSTANT_ERROR",
	NotSupported:          "NOT_SUPPORTED",
	ResourceLoopError:     "RESOURCE_LOOP_ERROR",
	Pending:               "PENDING",
	VersionMismatch:       "VERSION_MISMATCH",
	SignatureMismatch:     "SIGNATURE_MISMATCH",
	UnknownError:          "UNKNOWN_ERROR",
	AlreadyStored:         "ALREADY_STORED",
	LengthMismatch:        "LENGTH_MISMATCH",
	Mismatch:              "MISMATCH",
}

// String implements fmt.Stringer, returning the stable enum name.
func (r Result) String() string {
	if s, ok := resultNames[r]; ok {
		return s
	}
	return "UNKNOWN_ERROR"
}

// Error wraps a Result with the operation and path that produced it so
// callers get an actionable message while still being able to recover the
// Result via errors.As for programmatic handling.
type Error struct {
	Result Result
	Op     string
	Path   string
	Err    error // optional wrapped cause
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Result.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Result: SomeResult}) work by comparing the
// Result field;
// callers typically use errors.As(err, &rpathErr) instead, but a handful of
// simple checks read more naturally as errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Result == t.Result
}

// Errf constructs a new *Error for op/path with the given Result.
func Errf(result Result, op, path string, cause error) error {
	return &Error{Result: result, Op: op, Path: path, Err: cause}
}

// ResultOf unwraps err (if it is, or wraps, an *Error) to a Result, defaulting
// to OK for nil and UnknownError for anything else.
func ResultOf(err error) Result {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Result
	}
	return UnknownError
}
