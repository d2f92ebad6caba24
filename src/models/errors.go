package models

import "errors"

var (
	// ErrNotFound is returned by the store when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSymbol is returned when a tracked symbol code already exists.
	ErrDuplicateSymbol = errors.New("tracked symbol already exists")

	// ErrDuplicateObservation is returned when (symbol, fetched_at, source) already exists.
	ErrDuplicateObservation = errors.New("price observation already recorded")

	// ErrConnectionClosed is returned by real-time connections on a regular disconnect.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrRelayNotConnected is returned by callers that need a live bus connection.
	ErrRelayNotConnected = errors.New("event relay is not connected")
)
