package errors

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrRegionUnavailable   = errors.New("region unavailable")
	ErrAlreadyInQueue      = errors.New("already in queue")
	ErrQueueProcessing     = errors.New("queue request in progress")
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchAlreadySettled = errors.New("match already settled")
	ErrInvalidMatchResult  = errors.New("invalid match result")
	ErrNoHealthyNodes      = errors.New("no healthy queue nodes")
	ErrNodeUnavailable     = errors.New("queue node unavailable")
)
