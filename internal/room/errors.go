package room

import "errors"

var (
	// ErrRoomNotFound rejects operations on a room id with no live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull rejects a third distinct participant.
	ErrRoomFull = errors.New("room full")
	// ErrRoomNotActive rejects input before both participants are present or
	// after the room reached a terminal status.
	ErrRoomNotActive = errors.New("room not active")
	// ErrNotParticipant rejects input from a user the room does not know.
	ErrNotParticipant = errors.New("not a participant of this room")
)
