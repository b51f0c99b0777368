package core

import (
	"errors"
	"fmt"
)

// Options configures a Service.
type Options struct {
	// IdentifierPolicy is "quote" (default) or "strict".
	IdentifierPolicy string
}

// Service provides catalog access and bulk writes over one connection pool.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	db    DB
	build statementBuilder
}

// NewService creates a Service on db. The pool is owned by the caller.
func NewService(db DB, opts Options) (*Service, error) {
	if db == nil {
		return nil, errors.New("core: nil database")
	}

	policy, err := ParseIdentifierPolicy(opts.IdentifierPolicy)
	if err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}

	return &Service{
		db:    db,
		build: statementBuilder{policy: policy},
	}, nil
}
