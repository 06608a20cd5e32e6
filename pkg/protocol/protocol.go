// Package protocol defines the wire protocol spoken between the tunevault
// client and server: a single text request line per connection, answered by
// newline-separated listings, a raw payload with a trailing SHA-256 digest,
// or a two-token error message.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Operations accepted in a request line.
const (
	OpList     = "LIST"
	OpSearch   = "SEARCH"
	OpDownload = "DOWNLOAD"
)

// Error kinds carried by a wire error message.
const (
	KindFileError = "FILEERROR"
	KindRPCError  = "RPCERROR"
)

// RPC error codes. File errors carry the server's OS error number instead.
const (
	CodeTooManyArgs  = -1
	CodeTooFewArgs   = -2
	CodeBadOperation = -3
)

const (
	// DefaultPort is used by both sides when no port is given.
	DefaultPort = 8080

	// MaxRequestBytes bounds the single request read on the server.
	// Longer request lines are truncated.
	MaxRequestBytes = 256

	// DigestSize is the length of the binary SHA-256 digest trailing a
	// DOWNLOAD payload.
	DigestSize = 32
)

// Request is one client operation. Arg may contain spaces but not newlines.
type Request struct {
	Op  string
	Arg string
}

// Encode renders the request as a single wire line, no trailing newline.
func (r Request) Encode() []byte {
	if r.Arg == "" {
		return []byte(r.Op)
	}
	return []byte(r.Op + " " + r.Arg)
}

// WireError is an error message sent to the peer instead of a payload.
type WireError struct {
	Kind string
	Code int
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s %d", e.Kind, e.Code)
}

// Encode renders the error in its two-token wire form.
func (e *WireError) Encode() []byte {
	return []byte(e.Error())
}

// RPCError builds an RPCERROR wire error with the given code.
func RPCError(code int) *WireError {
	return &WireError{Kind: KindRPCError, Code: code}
}

// FileError builds a FILEERROR wire error carrying an OS error number.
func FileError(errno int) *WireError {
	return &WireError{Kind: KindFileError, Code: errno}
}

// ParseRequest validates one request line. It returns a WireError describing
// the protocol fault when the line does not match the request grammar:
//
//	LIST                no argument
//	SEARCH <term>       exactly one argument, spaces allowed
//	DOWNLOAD <name>     exactly one argument, spaces allowed
func ParseRequest(line string) (Request, *WireError) {
	line = strings.TrimRight(line, "\x00\r\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return Request{}, RPCError(CodeTooFewArgs)
	}

	op, arg, hasArg := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	if hasArg && arg == "" {
		hasArg = false
	}

	if !hasArg {
		if op != OpList {
			return Request{}, RPCError(CodeTooFewArgs)
		}
		return Request{Op: OpList}, nil
	}

	switch op {
	case OpSearch, OpDownload:
		return Request{Op: op, Arg: arg}, nil
	case OpList:
		return Request{}, RPCError(CodeTooManyArgs)
	default:
		return Request{}, RPCError(CodeBadOperation)
	}
}

// ParseWireError reports whether b is a two-token error message of a known
// kind. Clients use it to distinguish an error response from payload bytes.
func ParseWireError(b []byte) (*WireError, bool) {
	tokens := strings.Fields(strings.TrimRight(string(b), "\x00"))
	if len(tokens) != 2 {
		return nil, false
	}
	if tokens[0] != KindFileError && tokens[0] != KindRPCError {
		return nil, false
	}
	code, err := strconv.Atoi(tokens[1])
	if err != nil {
		return nil, false
	}
	return &WireError{Kind: tokens[0], Code: code}, true
}
