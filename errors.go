package poaAuth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is an exported constant or variable used by the authentication engine.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrConflict is an exported constant or variable used by the authentication engine.
	ErrConflict = errors.New("conflict")
	// ErrInvalidToken is an exported constant or variable used by the authentication engine.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotFound is an exported constant or variable used by the authentication engine.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidRole is an exported constant or variable used by the authentication engine.
	ErrInvalidRole = errors.New("invalid role")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is an exported constant or variable used by the authentication engine.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrInvalidInput is an exported constant or variable used by the authentication engine.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTOTPAlreadyEnabled is an exported constant or variable used by the authentication engine.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrTOTPNotPending is an exported constant or variable used by the authentication engine.
	ErrTOTPNotPending = errors.New("totp setup not started")
	// ErrTOTPNotEnabled is an exported constant or variable used by the authentication engine.
	ErrTOTPNotEnabled = errors.New("totp not enabled")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidConfig is an exported constant or variable used by the authentication engine.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrBackendUnavailable is an exported constant or variable used by the authentication engine.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrTOTPInvalid wraps ErrUnauthenticated so callers that only check the
	// coarse taxonomy still see a credential failure.
	ErrTOTPInvalid = fmt.Errorf("%w: invalid totp code", ErrUnauthenticated)
	// ErrBackupCodeInvalid wraps ErrUnauthenticated.
	ErrBackupCodeInvalid = fmt.Errorf("%w: invalid backup code", ErrUnauthenticated)
)
