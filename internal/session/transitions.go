package session

var transitions = map[Status][]Status{
	StatusUploaded:     {StatusTranscribing, StatusError},
	StatusTranscribing: {StatusAnalyzing, StatusError},
	StatusAnalyzing:    {StatusCompleted, StatusError},
}

// CanTransition reports whether the pipeline may move a session from one status
// to another. completed and error are terminal for the pipeline; leaving error
// requires Store.Retry.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}
