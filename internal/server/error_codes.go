package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument   = 1000
	ErrCodeInvalidJSON       = 1001
	ErrCodeRequestTooLarge   = 1002
	ErrCodeInvalidQuery      = 1003
	ErrCodeInvalidID         = 1004
	ErrCodeMissingRequired   = 1009
	ErrCodePolicyRejected    = 1020
	ErrCodeSettingsNotFound  = 1021
	ErrCodeInvalidEntityType = 1022
	ErrCodeInvalidPolicy     = 1023

	// Domain state (2xxx)
	ErrCodeAssetNotFound    = 2001
	ErrCodeOwnerNotFound    = 2002
	ErrCodeAssetNotUploaded = 2003
	ErrCodeUserNotFound     = 2004
	ErrCodeConflict         = 2102

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal           = 4001
	ErrCodeStoreFailure       = 4002
	ErrCodeStorageUnavailable = 4003
	ErrCodeNotImplemented     = 4005
)

// statusDefaults fills in the taxonomy for errors that were written with a
// bare status.
var statusDefaults = map[int]struct {
	code    string
	errCode int
}{
	400: {"invalid_argument", ErrCodeInvalidArgument},
	401: {"unauthorized", ErrCodeUnauthorized},
	403: {"forbidden", ErrCodeForbidden},
	404: {"not_found", ErrCodeAssetNotFound},
	409: {"conflict", ErrCodeConflict},
	413: {"invalid_argument", ErrCodeRequestTooLarge},
	429: {"resource_exhausted", ErrCodeResourceExhausted},
	500: {"internal", ErrCodeInternal},
}
