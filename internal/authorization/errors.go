package authorization

import "errors"

var (
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidActor      = errors.New("invalid_actor")
	ErrInvalidCapability = errors.New("invalid_capability")
)
