package objtx

import "errors"

// Sentinel error kinds, checkable with errors.Is. Call sites wrap these
// with contextual detail (type name, OID, table name) via fmt.Errorf's
// %w verb.
var (
	// ErrUnknownTypeID is returned when a read path meets a tableId that
	// is not in the registry.
	ErrUnknownTypeID = errors.New("objtx: unknown table id")

	// ErrUnknownType is returned when a Go type was not registered and
	// auto-registration is disabled or inapplicable.
	ErrUnknownType = errors.New("objtx: unknown type")

	// ErrInvalidStorage is returned by Store and StoreIfNotInlined when
	// asked to persist a value that is not a pointer, and by Store for an
	// Indirect that holds neither an OID nor a target.
	ErrInvalidStorage = errors.New("objtx: value is not storable")

	// ErrSingletonTypeMismatch is returned when a singleton's persisted
	// content decodes to an object incompatible with the requested type.
	ErrSingletonTypeMismatch = errors.New("objtx: singleton type mismatch")

	// ErrMissingMetadata signals a broken internal invariant: an object
	// reachable from the dirty set has no identity-map metadata.
	ErrMissingMetadata = errors.New("objtx: missing metadata")

	// ErrAutoRegistrationForbidden is returned when relation
	// auto-registration is disabled by the owning database.
	ErrAutoRegistrationForbidden = errors.New("objtx: auto-registration forbidden")

	// ErrRelationShapeInvalid is returned when a relation type does not
	// satisfy the shape InitRelation requires.
	ErrRelationShapeInvalid = errors.New("objtx: relation type has invalid shape")

	// ErrClosed is returned by any method called after Commit or
	// Dispose.
	ErrClosed = errors.New("objtx: transaction is closed")

	// ErrReadOnly is returned by mutating methods called on a read-only
	// transaction.
	ErrReadOnly = errors.New("objtx: transaction is read-only")
)
