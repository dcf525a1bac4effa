package verr

import "fmt"

// Sentinel error kinds for the ephemeral-image core. Each constructor
// returns a fresh *Error carrying a call-site frame; callers distinguish
// kinds with Code(err), not identity comparison.

// ErrInvalidInput is raised by the upload coordinator when the input bytes
// are empty or no content type was declared.
func ErrInvalidInput(msg string) *Error {
	return New(InvalidArgument, nil, 2, msg)
}

// ErrUnsupportedType is raised when the declared content type is not in
// the configured accepted set.
func ErrUnsupportedType(contentType string) *Error {
	return New(InvalidArgument, nil, 2, "unsupported content type: "+contentType)
}

// ErrTooLarge is raised when the decoded byte length exceeds the
// configured cap.
func ErrTooLarge(size, max int) *Error {
	return New(ResourceExhausted, nil, 2, fmt.Sprintf("upload of %d bytes exceeds maximum of %d bytes", size, max))
}

// ErrEntropy is raised by the token generator when the CSPRNG is
// unavailable.
func ErrEntropy(err error) *Error {
	return New(Internal, err, 2, "token: entropy source unavailable")
}

// ErrBlobIO is raised by a blob store adapter for a generic I/O fault.
func ErrBlobIO(err error) *Error {
	return New(Unavailable, err, 2, "blob store I/O failure")
}

// ErrBlobNotFound is raised when a blob reference does not resolve to
// any stored bytes.
func ErrBlobNotFound(ref string) *Error {
	return New(NotFound, nil, 2, "blob not found: "+ref)
}

// ErrBlobTooLarge is raised by an adapter that enforces its own,
// independent size limit.
func ErrBlobTooLarge() *Error {
	return New(ResourceExhausted, nil, 2, "blob exceeds adapter size limit")
}

// ErrIndexUnavailable is raised when the metadata index cannot be reached.
func ErrIndexUnavailable(err error) *Error {
	return New(Unavailable, err, 2, "metadata index unavailable")
}

// ErrIndexIO is raised for a metadata index fault that is not plain
// unavailability (e.g. a malformed record).
func ErrIndexIO(err error) *Error {
	return New(Internal, err, 2, "metadata index I/O failure")
}

// ErrInternal is raised when a metadata record resolves to a blob
// reference the blob store no longer has — an invariant violation, not
// a normal denial.
func ErrInternal(msg string) *Error {
	return New(Internal, nil, 2, msg)
}
