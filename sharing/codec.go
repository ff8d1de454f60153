package sharing

import (
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/keyfate/keyfate/interfaces"
)

// MaxShares is the largest supported share count, bounded by the GF(256)
// field the underlying scheme interpolates over.
const MaxShares = 255

// Split divides plaintext into total shares of which any threshold-size
// subset reconstructs the original, byte-exact. Fewer than threshold shares
// reveal no information about the plaintext.
//
// Preconditions: 2 <= threshold <= total <= 255 and a non-empty plaintext;
// violations return ErrInvalidShareConfiguration. Split is pure: it never
// logs or retains the plaintext or the produced shares.
func Split(plaintext []byte, total, threshold int) ([][]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: plaintext must not be empty", interfaces.ErrInvalidShareConfiguration)
	}
	if total < 2 || total > MaxShares {
		return nil, fmt.Errorf("%w: total shares must be between 2 and %d, got %d", interfaces.ErrInvalidShareConfiguration, MaxShares, total)
	}
	if threshold < 2 || threshold > total {
		return nil, fmt.Errorf("%w: threshold must be between 2 and total shares (%d), got %d", interfaces.ErrInvalidShareConfiguration, total, threshold)
	}

	shares, err := shamir.Split(plaintext, total, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrShareGenerationFailed, err)
	}
	if len(shares) != total {
		// Unreachable for a correct scheme, but short output must never be
		// passed off as a full share set.
		return nil, fmt.Errorf("%w: produced %d shares, expected %d", interfaces.ErrShareGenerationFailed, len(shares), total)
	}

	return shares, nil
}

// Combine reconstructs the plaintext from a threshold-size (or larger)
// subset of shares. Combining fewer shares than the originating threshold
// yields garbage by construction; offering fewer than two shares is
// rejected outright with ErrInsufficientShares.
func Combine(shares [][]byte) ([]byte, error) {
	if len(shares) < 2 {
		return nil, fmt.Errorf("%w: at least 2 shares are required, got %d", interfaces.ErrInsufficientShares, len(shares))
	}

	plaintext, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("combining shares: %w", err)
	}

	return plaintext, nil
}

// Wipe zeroes share or plaintext material the caller is done with.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
