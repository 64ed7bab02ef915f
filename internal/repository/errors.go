package repository

import "errors"

// ErrReadOnlyMasterData is returned when a caller tries to create, update or
// delete a backend-owned master-data row directly. Master data only changes
// through sync upserts. This is a programming error at the call site, not a
// retryable condition.
var ErrReadOnlyMasterData = errors.New("master data is read-only")
