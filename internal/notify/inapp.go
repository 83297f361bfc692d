package notify

import (
	"sync"

	appLog "railwatch/internal/log"
	"railwatch/internal/model"
)

// InAppNotifier fans alerts out to in-process subscribers (the control API
// among them) and remembers the most recent alert for status queries.
type InAppNotifier struct {
	bus *Bus[model.TravelAlert]

	mu   sync.Mutex
	last *model.TravelAlert
}

func NewInAppNotifier() *InAppNotifier {
	return &InAppNotifier{bus: NewBus[model.TravelAlert]()}
}

func (n *InAppNotifier) Notify(alert model.TravelAlert) {
	n.mu.Lock()
	a := alert
	n.last = &a
	n.mu.Unlock()
	n.bus.Emit(alert)
}

// OnReceive subscribes to delivered alerts; the returned function
// unsubscribes.
func (n *InAppNotifier) OnReceive(fn func(model.TravelAlert)) func() {
	return n.bus.Subscribe(fn)
}

// Last returns the most recently delivered alert, or nil.
func (n *InAppNotifier) Last() *model.TravelAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return nil
	}
	a := *n.last
	return &a
}

// LogNotifier writes alerts to the process log. Useful when running
// headless without the control API.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) Notify(alert model.TravelAlert) {
	chosen := ""
	if alert.Recommendation != nil {
		chosen = alert.Recommendation.Chosen.Summary
	}
	appLog.Info("travel alert", "id", alert.ID, "type", string(alert.Type), "body", alert.Body, "chosen", chosen)
}
