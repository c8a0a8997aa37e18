package migration

// State is the lifecycle position of one candidate record
type State int

const (
	StateCandidate State = iota
	StateResolving
	StateSkipped // already migrated
	StateBlocked // dependency missing or ambiguous
	StateReady
	StateCreating
	StateMigrated
	StateFailed // write error
)

var stateNames = map[State]string{
	StateCandidate: "candidate",
	StateResolving: "resolving",
	StateSkipped:   "skipped",
	StateBlocked:   "blocked",
	StateReady:     "ready",
	StateCreating:  "creating",
	StateMigrated:  "migrated",
	StateFailed:    "failed",
}

var transitions = map[State][]State{
	StateCandidate: {StateResolving},
	StateResolving: {StateSkipped, StateBlocked, StateReady},
	StateReady:     {StateCreating},
	StateCreating:  {StateMigrated, StateFailed},
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether s may move to next
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
