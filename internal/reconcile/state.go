package reconcile

// State is a step of the reconciliation state machine.
type State int

const (
	StateIdle State = iota
	StateLoadConfig
	StateStandalone
	StateCentralized
	StateObtainSource
	StateApply
	StateReport
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoadConfig:
		return "LoadConfig"
	case StateStandalone:
		return "Standalone"
	case StateCentralized:
		return "Centralized"
	case StateObtainSource:
		return "ObtainSource"
	case StateApply:
		return "Apply"
	case StateReport:
		return "Report"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}
