package interfaces

import "errors"

// Share configuration and generation errors. These are programmer or
// configuration errors: callers fail fast and never retry them.
var (
	// ErrInvalidShareConfiguration is returned when a split is requested
	// with an out-of-range total/threshold pair or an empty plaintext.
	ErrInvalidShareConfiguration = errors.New("invalid share configuration")

	// ErrShareGenerationFailed is returned when the underlying scheme does
	// not produce the requested number of shares. Unreachable for a correct
	// implementation, but never silently ignored.
	ErrShareGenerationFailed = errors.New("share generation failed")

	// ErrInsufficientShares is returned when a custody plan has no room for
	// every recipient, or when too few shares are offered for combination.
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Local share vault read outcomes. Each is surfaced to the user with a
// distinct actionable message; they are never merged into a generic error.
var (
	// ErrBundleNotFound is returned when no bundle exists for the secret.
	ErrBundleNotFound = errors.New("share bundle not found")

	// ErrBundleExpired is returned when the bundle's TTL elapsed. The entry
	// is invalidated as a side effect of the failed load.
	ErrBundleExpired = errors.New("share bundle expired")

	// ErrBundleCorrupt is returned when the stored content does not parse
	// into the expected shape.
	ErrBundleCorrupt = errors.New("share bundle corrupt")

	// ErrShareCountMismatch is returned when the number of stored shares
	// does not match the secret's declared split configuration.
	ErrShareCountMismatch = errors.New("share count mismatch")
)

// Check-in redemption outcomes. The first three are user-facing and
// terminal. ErrCheckInUpdateFailed indicates a server-side integrity
// concern (the token consume could not be applied together with the secret
// update) and is logged as such.
var (
	ErrTokenNotFound       = errors.New("check-in token not found")
	ErrTokenExpired        = errors.New("check-in token expired")
	ErrTokenAlreadyUsed    = errors.New("check-in token already used")
	ErrCheckInUpdateFailed = errors.New("check-in update failed")
)

// Storage and custody errors.
var (
	// ErrSecretNotFound is returned when the referenced secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrReminderNotFound is returned when the referenced reminder does not exist.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrServerShareMissing is returned when the server custody share has
	// been removed. The secret's disclosure path is permanently gone.
	ErrServerShareMissing = errors.New("server share missing")

	// ErrUpdateConflict is returned when a conditional update lost against
	// a concurrent writer.
	ErrUpdateConflict = errors.New("conditional update conflict")
)
