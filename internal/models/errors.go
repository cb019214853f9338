package models

import "errors"

// ErrNotFound is returned when an entity does not exist or is not visible to
// the caller. Lookups scoped to a principal return it for rows owned by a
// different principal, so callers cannot distinguish foreign objects from
// absent ones.
var ErrNotFound = errors.New("entity not found")

// ErrDuplicate is returned when an insert violates a uniqueness rule, such
// as reusing a buyer_ref within a principal.
var ErrDuplicate = errors.New("duplicate entity")
