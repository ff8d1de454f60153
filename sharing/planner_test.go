package sharing

import (
	"testing"

	"github.com/keyfate/keyfate/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecipients(n int) []interfaces.RecipientRef {
	recipients := make([]interfaces.RecipientRef, 0, n)
	names := []string{"Alice", "Bob", "Carol", "Dave"}
	for i := 0; i < n; i++ {
		recipients = append(recipients, interfaces.RecipientRef{
			Name:  names[i%len(names)],
			Email: names[i%len(names)] + "@example.com",
		})
	}
	return recipients
}

func TestPlanPerRecipient(t *testing.T) {
	plan, err := Plan(5, 3, testRecipients(2), interfaces.PolicyPerRecipient)
	require.NoError(t, err)

	assert.Equal(t, interfaces.PolicyPerRecipient, plan.Policy)
	require.Len(t, plan.Assignments, 4, "Every non-server index should be assigned")

	// Every index 1..4 assigned exactly once.
	seen := map[int]int{}
	for _, a := range plan.Assignments {
		seen[a.Index]++
		assert.NotEqual(t, 0, a.Index, "Index 0 is server custody and must never be assigned")
	}
	for idx := 1; idx < 5; idx++ {
		assert.Equal(t, 1, seen[idx], "Index %d should be assigned exactly once", idx)
	}

	// Recipients get distinct indices starting at 1; the rest is the owner's.
	assert.Equal(t, interfaces.HolderRecipient, plan.Assignments[0].Holder)
	assert.Equal(t, 1, plan.Assignments[0].Index)
	assert.Equal(t, interfaces.HolderRecipient, plan.Assignments[1].Holder)
	assert.Equal(t, 2, plan.Assignments[1].Index)
	assert.Equal(t, interfaces.HolderOwner, plan.Assignments[2].Holder)
	assert.Equal(t, interfaces.HolderOwner, plan.Assignments[3].Holder)
}

func TestPlanPerRecipientInsufficientShares(t *testing.T) {
	// 3 shares leave room for the server plus two recipients only.
	_, err := Plan(3, 2, testRecipients(3), interfaces.PolicyPerRecipient)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)
}

func TestPlanSharedShare(t *testing.T) {
	plan, err := Plan(4, 2, testRecipients(3), interfaces.PolicySharedShare)
	require.NoError(t, err)

	// All three recipients hold copies of index 1.
	recipientAssignments := 0
	for _, a := range plan.Assignments {
		if a.Holder == interfaces.HolderRecipient {
			recipientAssignments++
			assert.Equal(t, 1, a.Index, "Shared-share policy puts every recipient on index 1")
			require.NotNil(t, a.Recipient)
		}
	}
	assert.Equal(t, 3, recipientAssignments)

	// Index 2 is the owner's, index 3 a backup.
	var holders []interfaces.HolderKind
	for _, a := range plan.Assignments {
		if a.Holder != interfaces.HolderRecipient {
			holders = append(holders, a.Holder)
		}
	}
	assert.Equal(t, []interfaces.HolderKind{interfaces.HolderOwner, interfaces.HolderBackup}, holders)
}

func TestPlanValidation(t *testing.T) {
	_, err := Plan(5, 3, nil, interfaces.PolicyPerRecipient)
	assert.ErrorIs(t, err, interfaces.ErrInvalidShareConfiguration, "Empty recipient list should be rejected")

	_, err = Plan(1, 2, testRecipients(1), interfaces.PolicyPerRecipient)
	assert.ErrorIs(t, err, interfaces.ErrInvalidShareConfiguration, "Invalid total should be rejected")

	_, err = Plan(5, 3, testRecipients(1), interfaces.CustodyPolicy("guess"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidShareConfiguration, "Policy must be explicit, never inferred")
}
