package interfaces

import (
	"time"
)

// SecretID uniquely identifies a stored secret. IDs are assigned by the
// storage collaborator at creation time (uuid v4 string form).
type SecretID string

// String returns the raw identifier.
func (id SecretID) String() string {
	return string(id)
}

// SecretStatus represents the lifecycle state of a secret.
type SecretStatus string

const (
	// SecretActive means check-ins are expected and reminders fire.
	SecretActive SecretStatus = "active"

	// SecretPaused means the owner suspended the switch; no reminders fire.
	SecretPaused SecretStatus = "paused"

	// SecretTriggered means the check-in deadline passed and the disclosure
	// path has been initiated.
	SecretTriggered SecretStatus = "triggered"
)

// Secret holds the subset of secret fields the check-in and reminder
// machinery operates on.
//
// Invariant: NextCheckIn = LastCheckIn + CheckInIntervalDays. A secret with
// HasServerShare == false is permanently disabled from further reminders:
// the server-side disclosure path is gone and the secret must be forced out
// of the active state.
type Secret struct {
	ID                  SecretID
	UserID              string
	Title               string
	Status              SecretStatus
	CheckInIntervalDays int
	LastCheckIn         time.Time
	NextCheckIn         time.Time
	HasServerShare      bool
}

// CheckInInterval returns the configured check-in interval as a duration.
func (s *Secret) CheckInInterval() time.Duration {
	return time.Duration(s.CheckInIntervalDays) * 24 * time.Hour
}

// RecipientRef identifies a designated recipient of a share.
type RecipientRef struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// HolderKind designates who is responsible for keeping a share safe.
type HolderKind string

const (
	// HolderOwner means the secret owner keeps the share.
	HolderOwner HolderKind = "owner"

	// HolderRecipient means a designated recipient keeps the share.
	HolderRecipient HolderKind = "recipient"

	// HolderBackup means the share is a spare the owner stores out of band.
	HolderBackup HolderKind = "backup"
)

// CustodyPolicy selects how non-server shares are distributed to recipients.
// The policy changes the security model, so it is always an explicit choice,
// never inferred.
type CustodyPolicy string

const (
	// PolicyPerRecipient assigns each recipient a distinct share index.
	// This is the canonical policy.
	PolicyPerRecipient CustodyPolicy = "per-recipient"

	// PolicySharedShare assigns all recipients the same share index, with
	// the remaining indices held by the owner as backups. Legacy mode; with
	// thresholds above 2 recipients additionally need backup shares to
	// reconstruct.
	PolicySharedShare CustodyPolicy = "shared-share"
)

// ShareAssignment binds one non-server share index to its designated holder.
type ShareAssignment struct {
	// Index is the share index within the split output. Index 0 is server
	// custody and never appears in an assignment.
	Index int

	Holder HolderKind

	// Recipient is set when Holder is HolderRecipient.
	Recipient *RecipientRef
}

// CustodyAssignment is the full distribution plan for one split operation.
type CustodyAssignment struct {
	TotalShares int
	Threshold   int
	Policy      CustodyPolicy
	Assignments []ShareAssignment
}

// SecretShareSet is the output of one split operation. Share index 0 is
// reserved for server custody; indices 1..TotalShares-1 are local/recipient
// custody.
type SecretShareSet struct {
	SecretID    SecretID
	TotalShares int
	Threshold   int
	Shares      [][]byte
}

// ServerShare returns the share designated for server custody.
func (s *SecretShareSet) ServerShare() []byte {
	return s.Shares[0]
}

// LocalShares returns the shares that stay with the owner and recipients.
func (s *SecretShareSet) LocalShares() [][]byte {
	return s.Shares[1:]
}

// VaultedShareBundle is the client-side persisted form of the non-server
// shares. It lives exclusively in the originating device's local vault and
// is never transmitted to the server.
type VaultedShareBundle struct {
	SecretID  SecretID
	Shares    []string // hex encoded
	ExpiresAt time.Time
}

// CheckInToken is a single-use, time-limited credential that extends a
// secret's check-in deadline when redeemed.
//
// Only the SHA-256 hash of the opaque token is persisted. UsedAt transitions
// nil to a timestamp exactly once, enforced by the store's conditional
// write. A token past ExpiresAt is unusable regardless of UsedAt.
type CheckInToken struct {
	ID        string
	SecretID  SecretID
	TokenHash []byte
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// ReminderType names a rung of the reminder ladder relative to the secret's
// next check-in deadline. Percentage offsets are computed from the check-in
// interval as configured at scheduling time.
type ReminderType string

const (
	Reminder50Percent ReminderType = "50_percent"
	Reminder25Percent ReminderType = "25_percent"
	Reminder7Days     ReminderType = "7_days"
	Reminder3Days     ReminderType = "3_days"
	Reminder24Hours   ReminderType = "24_hours"
	Reminder12Hours   ReminderType = "12_hours"
	Reminder1Hour     ReminderType = "1_hour"
)

// ReminderStatus represents a reminder's position in its state machine.
// Pending is the only non-terminal state; a failed delivery keeps the
// reminder Pending (with a pushed-back ScheduledFor) until attempts are
// exhausted.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderFailed    ReminderStatus = "failed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder is one pending notification work item.
type Reminder struct {
	ID           string
	SecretID     SecretID
	UserID       string
	Type         ReminderType
	ScheduledFor time.Time
	Status       ReminderStatus
	Attempts     int
	Error        string
	CreatedAt    time.Time
}
