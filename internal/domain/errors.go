package domain

import "errors"

var (
	ErrEmptyPayload       = errors.New("payload is empty")
	ErrInvalidPayload     = errors.New("payload is not valid JSON")
	ErrConnectionClosed   = errors.New("connection is closed")
	ErrSendBufferFull     = errors.New("send buffer is full")
	ErrAlreadyRegistered  = errors.New("connection already registered")
	ErrConnectionRejected = errors.New("connection rejected")
)
