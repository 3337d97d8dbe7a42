package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind classifies a failure at an adapter boundary.
type Kind int

const (
	// Transient failures (network, timeout, 429, 5xx) are safe to retry and
	// are skipped once retries are exhausted.
	Transient Kind = iota + 1
	// Malformed records or responses are skipped without counting against
	// the source.
	Malformed
	// Fatal failures (auth rejected, endpoint gone) stop the run.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Malformed:
		return "malformed"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Error tags an adapter error with its Kind.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func NewTransient(op string, err error) *Error {
	return &Error{Kind: Transient, Op: op, Err: err}
}

func NewMalformed(op string, err error) *Error {
	return &Error{Kind: Malformed, Op: op, Err: err}
}

func NewFatal(op string, err error) *Error {
	return &Error{Kind: Fatal, Op: op, Err: err}
}

// KindOf returns the Kind of the first tagged error in err's chain. Untagged
// errors are classified by the network heuristics of IsTransient and
// otherwise treated as transient: a single bad page must never end a run.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}

func IsFatal(err error) bool     { return KindOf(err) == Fatal }
func IsMalformed(err error) bool { return KindOf(err) == Malformed }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind == Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// ClassifyHTTPStatus maps a non-2xx status code to a Kind.
func ClassifyHTTPStatus(code int) Kind {
	switch {
	case code == 401 || code == 403:
		return Fatal
	case code == 408 || code == 425 || code == 429 || code >= 500:
		return Transient
	default:
		return Malformed
	}
}
