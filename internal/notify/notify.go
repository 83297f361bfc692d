// Package notify delivers travel alerts. Delivery is fire-and-forget: no
// acknowledgment is awaited and no delivery guarantee is given.
package notify

import (
	"railwatch/internal/model"
)

// Notifier is the notification channel contract.
type Notifier interface {
	Notify(alert model.TravelAlert)
}
