package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrMissingToken     = errors.New("repository host token not configured")
	ErrPRNotFound       = errors.New("pull request not found")
	ErrJobNotFound      = errors.New("sync job not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
