// Package repository contains the data access layer for the durable
// store.  These sentinel values allow higher layers to distinguish
// between different failure scenarios with errors.Is: for example
// ErrShowNotFound indicates a request for a show that does not exist,
// while ErrConflict signals that an insert collided with existing
// dependent records (e.g. booking a seat that another booking already
// references).
package repository

import "errors"

// ErrShowNotFound indicates that a show was not located in the DB.
var ErrShowNotFound = errors.New("show not found")

// ErrConflict is returned when an insert cannot be performed because of
// conflicting state, such as creating a booking for a seat that is
// already part of a committed booking for the same show.
var ErrConflict = errors.New("conflict")

// ErrSeatUnknown is returned when a seat label does not resolve to a
// seat row in the show's hall.
var ErrSeatUnknown = errors.New("unknown seat")
