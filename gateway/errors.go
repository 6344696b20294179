package gateway

import "errors"

// Failure codes sent back to clients in error frames.
const (
	CodeConnectionNotFound = "CONNECTION_NOT_FOUND"
	CodeTextUnsupported    = "TEXT_FRAMES_UNSUPPORTED"
	CodeMalformedMessage   = "MALFORMED_MESSAGE"
	CodeReAuthUnsupported  = "RE_AUTH_UNSUPPORTED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeNotJoined          = "NOT_JOINED"
	CodeInvalidCommand     = "INVALID_COMMAND"
	CodePublishFailed      = "PUBLISH_FAILED"
	CodeOperatorMismatch   = "OPERATOR_MISMATCH"
)

// Failure is a client-visible routing or forwarding failure. It reaches the
// player as an error frame, never as a closed socket.
type Failure struct {
	Code    string
	Message string
}

func (f *Failure) Error() string { return f.Code + ": " + f.Message }

func fail(code, message string) *Failure {
	return &Failure{Code: code, Message: message}
}

// FailureCode extracts the client-visible code, or "" for other errors.
func FailureCode(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}
