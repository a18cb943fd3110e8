package core

import (
	"errors"
)

var (
	// ErrSceneParse marks a scene file that is missing, unreadable or structurally invalid.
	// It is never retried: the load is abandoned and no partial scene is produced.
	ErrSceneParse = errors.New("failed to parse scene file")
	// ErrTextureDecode is returned when an image referenced by a material cannot be decoded.
	ErrTextureDecode = errors.New("failed to decode texture image")
	// ErrNotFlushed is returned when a resource is read before its pending upload or build ran.
	ErrNotFlushed = errors.New("resource read before pending uploads were flushed")
	// ErrInvalidResource is returned for destroyed, foreign or nil resources.
	ErrInvalidResource = errors.New("invalid resource")
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrUnknown         = errors.New("unknown")
)
