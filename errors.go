package authstate

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	textCodeTokenExpired           = "SESSION_TOKEN_EXPIRED"
	textCodeProfileNotFound        = "PROFILE_NOT_FOUND"
	textCodeAgreementCheckFailed   = "AGREEMENT_CHECK_FAILED"
	textCodeAgreementAcceptFailed  = "AGREEMENT_ACCEPT_FAILED"
	textCodePersistenceUnavailable = "SESSION_PERSISTENCE_UNAVAILABLE"
)

// ErrInvalidCredentials is returned when the identity provider rejects an
// email/password pair. Recoverable: shown inline, no state mutation beyond
// clearing the loading flag.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned after the refresher's two-strikes rule trips;
// it forces the Unauthenticated transition and clears the persisted session.
var ErrTokenExpired = goerrors.New("session token expired", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrProfileNotFound is returned when an identity exists but its profile row
// is missing, so the UI can offer profile repair instead of silently treating
// the user as unauthenticated.
var ErrProfileNotFound = goerrors.New("profile not found for identity", goerrors.CategoryNotFound).
	WithTextCode(textCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAgreementCheck is returned when the agreement backend cannot be reached.
// The gate never defaults to "agreement satisfied" on this error.
var ErrAgreementCheck = goerrors.New("unable to verify agreement status", goerrors.CategoryOperation).
	WithTextCode(textCodeAgreementCheckFailed).
	WithCode(goerrors.CodeInternal)

// ErrAgreementAccept is returned when recording an acceptance fails; the
// cached status is left unchanged.
var ErrAgreementAccept = goerrors.New("unable to record agreement acceptance", goerrors.CategoryOperation).
	WithTextCode(textCodeAgreementAcceptFailed).
	WithCode(goerrors.CodeInternal)

// ErrPersistenceUnavailable marks the storage medium as inaccessible. The
// session store degrades to memory-only behavior and logs the condition once.
var ErrPersistenceUnavailable = goerrors.New("session storage unavailable", goerrors.CategoryInternal).
	WithTextCode(textCodePersistenceUnavailable).
	WithCode(goerrors.CodeInternal)

// IsCredentialError checks for rejected credentials
func IsCredentialError(err error) bool {
	return hasTextCode(err, textCodeInvalidCredentials)
}

// IsTokenExpiredError checks for the forced-expiry condition
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, textCodeTokenExpired)
}

// IsProfileNotFoundError checks for a missing profile row
func IsProfileNotFoundError(err error) bool {
	return hasTextCode(err, textCodeProfileNotFound)
}

// IsAgreementCheckError checks for an unreachable agreement backend
func IsAgreementCheckError(err error) bool {
	return hasTextCode(err, textCodeAgreementCheckFailed)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// asRichError normalizes any error into a *goerrors.Error so AuthState.Err
// subscribers always see a categorized value.
func asRichError(err error, category goerrors.Category, msg string) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, category, msg)
}
