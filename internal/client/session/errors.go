package session

import "errors"

// TransportError marks a socket or handshake failure. Downloads retry these;
// listings surface them immediately.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IntegrityError marks a response whose trailing digest was missing or did
// not match the received payload. Treated like a transport fault: the
// transfer was truncated or corrupted in flight, so it is retried.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "integrity failure: " + e.Reason
}

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func isRetryable(err error) bool {
	var te *TransportError
	var ie *IntegrityError
	return errors.As(err, &te) || errors.As(err, &ie)
}
