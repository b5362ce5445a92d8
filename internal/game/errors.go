package game

import "errors"

// ErrInvalidInput rejects malformed input: wrong input kind for the game,
// missing or out-of-range fields. The session is left unchanged.
var ErrInvalidInput = errors.New("invalid input")
