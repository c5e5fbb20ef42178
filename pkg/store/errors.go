package store

import "errors"

var (
	// ErrAuthentication is returned when a token is missing or invalid.
	ErrAuthentication = errors.New("authentication failed")

	ErrUnknownEnvelopeType = errors.New("unknown envelope type")

	// ErrAIGeneration wraps any failure of the AI responder, including timeouts.
	ErrAIGeneration = errors.New("ai generation failed")

	// ErrTransportSend means an envelope could not be delivered; the session is torn down.
	ErrTransportSend = errors.New("transport send failed")

	ErrConfiguration = errors.New("invalid configuration")

	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionOwnership is returned when a session id belongs to another user.
	ErrSessionOwnership = errors.New("session belongs to another user")
)
