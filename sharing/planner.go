package sharing

import (
	"fmt"

	"github.com/keyfate/keyfate/interfaces"
)

// Plan assigns every non-server share index (1..total-1) to a designated
// holder under the given custody policy. Index 0 is server custody and is
// pre-excluded from the plan.
//
// Under PolicyPerRecipient each recipient receives a distinct index
// starting at 1; the plan requires total >= len(recipients)+1 so the server
// share and every recipient fit, and fails with ErrInsufficientShares
// otherwise. Remaining indices go to the owner.
//
// Under PolicySharedShare all recipients are assigned index 1 (they all
// receive the same share value), the next index is the owner's, and any
// remaining indices are backups. With thresholds above 2 a single recipient
// plus the server share is not sufficient to reconstruct; recipients must
// additionally hold backup shares.
func Plan(total, threshold int, recipients []interfaces.RecipientRef, policy interfaces.CustodyPolicy) (interfaces.CustodyAssignment, error) {
	if total < 2 || threshold < 2 || threshold > total {
		return interfaces.CustodyAssignment{}, fmt.Errorf("%w: total=%d threshold=%d", interfaces.ErrInvalidShareConfiguration, total, threshold)
	}
	if len(recipients) == 0 {
		return interfaces.CustodyAssignment{}, fmt.Errorf("%w: at least one recipient is required", interfaces.ErrInvalidShareConfiguration)
	}

	plan := interfaces.CustodyAssignment{
		TotalShares: total,
		Threshold:   threshold,
		Policy:      policy,
	}

	switch policy {
	case interfaces.PolicyPerRecipient:
		if total < len(recipients)+1 {
			return interfaces.CustodyAssignment{}, fmt.Errorf("%w: %d shares cannot cover server custody plus %d recipients", interfaces.ErrInsufficientShares, total, len(recipients))
		}
		for i := range recipients {
			plan.Assignments = append(plan.Assignments, interfaces.ShareAssignment{
				Index:     i + 1,
				Holder:    interfaces.HolderRecipient,
				Recipient: &recipients[i],
			})
		}
		for idx := len(recipients) + 1; idx < total; idx++ {
			plan.Assignments = append(plan.Assignments, interfaces.ShareAssignment{
				Index:  idx,
				Holder: interfaces.HolderOwner,
			})
		}

	case interfaces.PolicySharedShare:
		// Every recipient holds a copy of share 1.
		for i := range recipients {
			plan.Assignments = append(plan.Assignments, interfaces.ShareAssignment{
				Index:     1,
				Holder:    interfaces.HolderRecipient,
				Recipient: &recipients[i],
			})
		}
		for idx := 2; idx < total; idx++ {
			holder := interfaces.HolderOwner
			if idx > 2 {
				holder = interfaces.HolderBackup
			}
			plan.Assignments = append(plan.Assignments, interfaces.ShareAssignment{
				Index:  idx,
				Holder: holder,
			})
		}

	default:
		return interfaces.CustodyAssignment{}, fmt.Errorf("%w: unknown custody policy %q", interfaces.ErrInvalidShareConfiguration, policy)
	}

	return plan, nil
}
