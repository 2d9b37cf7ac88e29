package liveClient

import (
	"errors"
	"fmt"
)

// ErrValidation marks input rejected locally, before any network call.
var ErrValidation = errors.New("error validation failed")

// ServerError carries the server's status and error detail verbatim.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}
