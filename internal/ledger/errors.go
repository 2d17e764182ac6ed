package ledger

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("room session not found")
	ErrUnknownPlayer   = errors.New("player not found in room session")
	ErrAlreadyExists   = errors.New("already exists")
	ErrAlreadyMember   = errors.New("player already exists in the room")
	// ErrSessionFrozen is returned for mutations after the room has been settled.
	ErrSessionFrozen = errors.New("room session is settled")
)
