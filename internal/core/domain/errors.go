package domain

import "errors"

var (
	ErrStoreUnavailable    = errors.New("call store unavailable")
	ErrPublishFailed       = errors.New("call publish failed")
	ErrMalformedRecord     = errors.New("malformed call record")
	ErrRequestNotFound     = errors.New("call request not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrRateLimited         = errors.New("call rate limit exceeded")
)
