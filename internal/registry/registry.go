// Package registry binds live connection ids to user identities. It is the
// lowest layer of the engine: a mutex-guarded table with no knowledge of
// rooms beyond the membership pointer used for disconnect cleanup.
package registry

import (
	"errors"
	"sync"
)

var (
	// ErrDuplicateConnection rejects a second register for a live id.
	ErrDuplicateConnection = errors.New("duplicate connection")
	// ErrUnknownConnection rejects operations on an unregistered id.
	ErrUnknownConnection = errors.New("unknown connection")
)

type entry struct {
	userID string
	roomID string
}

// Registry tracks live connections.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]*entry)}
}

// Register records a new live connection.
func (r *Registry) Register(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; ok {
		return ErrDuplicateConnection
	}
	r.conns[connID] = &entry{}
	return nil
}

// BindIdentity attaches a stable user id to a registered connection.
func (r *Registry) BindIdentity(connID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	e.userID = userID
	return nil
}

// Lookup resolves a connection to its bound user id.
func (r *Registry) Lookup(connID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return "", ErrUnknownConnection
	}
	return e.userID, nil
}

// SetRoom records the room a connection has joined; empty clears it.
func (r *Registry) SetRoom(connID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	e.roomID = roomID
	return nil
}

// Room returns the room a connection has joined, if any.
func (r *Registry) Room(connID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return "", ErrUnknownConnection
	}
	return e.roomID, nil
}

// Unregister removes a connection and returns the identity and room
// membership it held so the caller can run disconnect cleanup.
func (r *Registry) Unregister(connID string) (userID, roomID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[connID]
	if !ok {
		return "", "", ErrUnknownConnection
	}
	delete(r.conns, connID)
	return e.userID, e.roomID, nil
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
