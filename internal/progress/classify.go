package progress

// Phase tags sent by the build service
const (
	PhaseFailed    = "failed"
	PhaseReady     = "ready"
	PhaseBuilding  = "building"
	PhaseWaiting   = "waiting"
	PhasePushing   = "pushing"
	PhaseBuilt     = "built"
	PhaseLaunching = "launching"
)

// Classify maps a raw phase tag to its State. The second return value is false
// for tags the client does not know; callers leave the current state alone.
func Classify(phase string) (State, bool) {
	switch phase {
	case PhaseFailed:
		return Failed, true
	case PhaseReady:
		return Success, true
	case PhaseBuilding:
		return Building, true
	case PhaseWaiting:
		return Waiting, true
	case PhasePushing:
		return Pushing, true
	case PhaseBuilt:
		// the image still has to reach the registry
		return Pushing, true
	case PhaseLaunching:
		return Launching, true
	default:
		return NotStarted, false
	}
}
