package progress

// State is the coarse build status shown to the user
type State int

const (
	NotStarted State = iota
	Waiting
	Building
	Pushing
	Launching
	Success
	Failed
)

var stateNames = map[State]string{
	NotStarted: "not started",
	Waiting:    "waiting",
	Building:   "building",
	Pushing:    "pushing",
	Launching:  "launching",
	Success:    "success",
	Failed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

// Terminal reports whether no further transitions are applied after s
func (s State) Terminal() bool {
	return s == Success || s == Failed
}

// Steps is the ordered list of non-terminal states a build walks through
func Steps() []State {
	return []State{Waiting, Building, Pushing, Launching}
}

// Fraction returns how far along the build is for the progress bar, in [0, 1]
func Fraction(s State) float64 {
	switch s {
	case Success:
		return 1
	case NotStarted, Failed:
		return 0
	}

	steps := Steps()
	for i, step := range steps {
		if step == s {
			return float64(i+1) / float64(len(steps)+1)
		}
	}

	return 0
}
