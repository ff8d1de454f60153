// Package interfaces defines the shared types, storage contracts, and error
// taxonomy for the KeyFate secret-sharing and check-in/reminder core.
//
// The package is the single home for:
//
//   - Entity types: Secret, SecretShareSet, CustodyAssignment,
//     VaultedShareBundle, CheckInToken, Reminder.
//   - Storage collaborator contracts: SecretStore, TokenStore,
//     ReminderStore (bundled as Store), and ServerShareStore for server
//     custody of share index 0.
//   - Notification collaborator contracts: Channel, ContactResolver.
//   - Sentinel errors used across packages with errors.Is.
//
// # Custody model
//
// A split produces TotalShares shares with Threshold required for
// reconstruction. Share index 0 is always server custody; the remaining
// indices are distributed to the owner and recipients according to an
// explicit CustodyPolicy. The non-server shares live only in the
// originating device's local vault (see package sharevault) and are never
// transmitted to the server.
//
// # Error taxonomy
//
// Errors fall into four families, matching how callers react to them:
//
//   - Configuration errors (ErrInvalidShareConfiguration,
//     ErrShareGenerationFailed, ErrInsufficientShares): fail fast, never
//     retried.
//   - Vault read outcomes (ErrBundleNotFound, ErrBundleExpired,
//     ErrBundleCorrupt, ErrShareCountMismatch): each independently
//     distinguishable so the caller can render a specific message.
//   - Check-in redemption outcomes (ErrTokenNotFound, ErrTokenExpired,
//     ErrTokenAlreadyUsed, ErrCheckInUpdateFailed).
//   - Storage conditions (ErrSecretNotFound, ErrUpdateConflict, ...).
//
// No error path exposes storage internals, stack traces, or cryptographic
// material to end users.
package interfaces
