package reminder

import (
	"fmt"
	"strings"

	"github.com/keyfate/keyfate/interfaces"
)

// urgencyLabel is the human wording for each ladder rung.
var urgencyLabel = map[interfaces.ReminderType]string{
	interfaces.Reminder50Percent: "Halfway to your check-in deadline",
	interfaces.Reminder25Percent: "Three quarters of your check-in window has passed",
	interfaces.Reminder7Days:     "7 days until your check-in deadline",
	interfaces.Reminder3Days:     "3 days until your check-in deadline",
	interfaces.Reminder24Hours:   "24 hours until your check-in deadline",
	interfaces.Reminder12Hours:   "12 hours until your check-in deadline",
	interfaces.Reminder1Hour:     "Final reminder: 1 hour until your check-in deadline",
}

// render builds the notification content for one reminder firing. The
// check-in link embeds a token minted for this firing.
func (d *Dispatcher) render(secret *interfaces.Secret, reminder *interfaces.Reminder, token string) interfaces.Notification {
	label, ok := urgencyLabel[reminder.Type]
	if !ok {
		label = "Your check-in deadline is approaching"
	}

	checkInURL := fmt.Sprintf("%s/api/checkin?token=%s", strings.TrimRight(d.baseURL, "/"), token)

	var body strings.Builder
	fmt.Fprintf(&body, "%s.\n\n", label)
	fmt.Fprintf(&body, "Your secret %q is due for a check-in by %s.\n", secret.Title, secret.NextCheckIn.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	fmt.Fprintf(&body, "If you do not check in, disclosure to your recipients begins.\n\n")
	fmt.Fprintf(&body, "Check in now: %s\n", checkInURL)

	return interfaces.Notification{
		Subject:    fmt.Sprintf("[KeyFate] %s", label),
		Body:       body.String(),
		CheckInURL: checkInURL,
	}
}
