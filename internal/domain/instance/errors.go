package instance

import "errors"

var (
	ErrInvalidArgument = errors.New("instance: invalid argument")
	ErrNotFound        = errors.New("instance: not found")
	ErrIO              = errors.New("instance: store i/o failure")
	ErrIPC             = errors.New("instance: ipc failure")
	ErrAlreadyExists   = errors.New("instance: already exists")
	ErrClosed          = errors.New("instance: service not initialized")
	ErrReleased        = errors.New("instance: handle already released")
)
