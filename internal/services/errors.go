package services

import "errors"

var (
	// ErrSessionNotFound is returned for unknown or stopped sessions
	ErrSessionNotFound = errors.New("session not found")
	// ErrCollectionLoading is returned while an identical collection fetch is in flight
	ErrCollectionLoading = errors.New("collection is already loading")
	// ErrInvalidMembership is returned when the widget user is not a joined room member
	ErrInvalidMembership = errors.New("local user is not a room member")
)
