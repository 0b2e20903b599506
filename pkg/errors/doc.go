// Package errors provides structured error handling with error codes for simple-deviceid.
//
// Every failure that crosses a package boundary carries an ErrorCode so callers can branch
// on the kind of failure without string matching, and HTTP handlers can map it to a status.
//
// # Error Codes
//
// Validation (expected, recoverable):
//   - ErrCodeEmptyProfile: the candidate fingerprint had no attributes
//   - ErrCodeMalformedAttributes: the attribute document failed structural validation
//   - ErrCodeInvalidInput: a request parameter was out of range
//
// Identity preconditions:
//   - ErrCodeIdentityNotFound
//   - ErrCodeIdentityInactive
//
// Resource failures:
//   - ErrCodeStorageUnavailable: the profile repository could not be reached
//   - ErrCodeInternal
//
// # Basic Usage
//
//	profiles, err := repo.GetProfiles(ctx, key)
//	if err != nil {
//		return nil, errors.StorageUnavailable(err, "load_profiles").
//			WithDetail("realm", key.Realm).
//			WithDetail("username", key.Username)
//	}
//
//	if errors.IsCode(err, errors.ErrCodeIdentityInactive) {
//		// route the user to support
//	}
//
// Details hold identifiers only. Fingerprint attribute values may contain IP or location
// data and must never be placed in an Error.
//
// # HTTP Status Code Mapping
//
//   - ErrCodeInvalidInput, ErrCodeEmptyProfile, ErrCodeMalformedAttributes → 400
//   - ErrCodeUnauthorized → 401
//   - ErrCodeIdentityInactive → 403
//   - ErrCodeNotFound, ErrCodeIdentityNotFound → 404
//   - ErrCodeRateLimitExceeded → 429
//   - ErrCodeStorageUnavailable → 503
//   - everything else → 500
package errors
