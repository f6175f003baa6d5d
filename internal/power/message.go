package power

import "fmt"

// ///////////////////////////////////////////////
// Message Kinds
// ///////////////////////////////////////////////

// Kind identifies a power-management message delivered by the platform.
type Kind int

const (
	// KindUnknown is any message the bridge does not act on.
	KindUnknown Kind = iota
	// KindWillSleep announces an imminent system sleep. The pending change
	// must be acknowledged before the platform proceeds.
	KindWillSleep
	// KindWillPowerOn announces that the system is waking.
	KindWillPowerOn
	// KindHasPoweredOn reports that the system finished waking.
	KindHasPoweredOn
	// KindCanSleep is an idle-sleep query. It is acknowledged without
	// running any hook.
	KindCanSleep
)

// String returns the lowercase, hyphenated name of k.
func (k Kind) String() string {
	switch k {
	case KindWillSleep:
		return "will-sleep"
	case KindWillPowerOn:
		return "will-power-on"
	case KindHasPoweredOn:
		return "has-powered-on"
	case KindCanSleep:
		return "can-sleep"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Message is a single power notification.
type Message struct {
	// Kind is the classified message type.
	Kind Kind
	// ID is the platform's opaque notification identifier, passed back
	// unchanged to [Handle.Acknowledge].
	ID uintptr
}
