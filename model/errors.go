package model

import "errors"

var (
	// ErrUnknownSensorType indicates a sensor type outside the fixed set
	ErrUnknownSensorType = errors.New("unknown sensor type")

	// ErrMalformedMessage indicates a topic or payload that cannot become a reading
	ErrMalformedMessage = errors.New("malformed message")

	// ErrStoreWrite indicates a reading could not be persisted
	ErrStoreWrite = errors.New("store write failure")

	// ErrSubscription indicates the channel refused the topic subscription
	ErrSubscription = errors.New("subscription failure")
)
