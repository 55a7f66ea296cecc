package shared

import "errors"

var (
	// ErrMissingTenant indicates a request without a tenant header.
	ErrMissingTenant = errors.New("tenant missing")
	// ErrInvalidTenant indicates a tenant header that is not a UUID.
	ErrInvalidTenant = errors.New("tenant invalid")
)
