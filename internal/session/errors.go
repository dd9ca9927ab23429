package session

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room already has two participants")
	ErrRoomTimeout      = errors.New("room timed out waiting for a peer")
	ErrPeerTimeout      = errors.New("peer keepalive timeout")
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrNotEstablished   = errors.New("session not established")
	ErrClosed           = errors.New("session closed")
	ErrHandshake        = errors.New("handshake failed")
)

// OpError wraps a failure with the session operation that produced it.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opErr(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}
