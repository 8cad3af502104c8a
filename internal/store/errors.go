package store

import (
	derrors "git.home.luguber.info/inful/detecttune/internal/foundation/errors"
)

var (
	// ErrDuplicateKey reports an append for an id that is already stored.
	ErrDuplicateKey = derrors.StoreError("duplicate trial id").Build()

	// ErrNotFound reports a read for an id that was never stored.
	ErrNotFound = derrors.NotFoundError("trial record not found").Build()

	// ErrInconsistent reports a store whose contents do not fit the current run.
	ErrInconsistent = derrors.StoreError("result store is inconsistent with this run").UserAction().Build()

	// ErrUnknownBackend reports an unsupported backend kind.
	ErrUnknownBackend = derrors.ConfigError("unknown store backend").Build()
)
