package auth

import "errors"

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrNotFound        = errors.New("auth: not found")
	ErrDuplicate       = errors.New("auth: already exists")
	ErrInvalidInput    = errors.New("auth: invalid input")
)

// ErrInvalidToken indicates the token failed decoding: bad signature, malformed
// payload or expired. It never leaves the service layer; callers see
// ErrUnauthenticated instead.
var ErrInvalidToken = errors.New("auth: invalid token")
