package directory

import "errors"

// Failure classes for external directory calls. Handlers map these onto
// 404/409/502/504 at the route boundary.
var (
	ErrNotFound   = errors.New("directory record not found")
	ErrConflict   = errors.New("directory record conflict")
	ErrPermission = errors.New("directory rejected credentials")
	ErrUpstream   = errors.New("directory unavailable")
	ErrTimeout    = errors.New("directory call timed out")
)
