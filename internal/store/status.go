package store

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateErrored State = "errored"
)

// Status is the shared loading/error slot observed by the UI.
type Status struct {
	State   State  `json:"state"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

func (s *Store) begin() {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()
}

// finish closes an operation opened by begin and records its outcome. A
// success clears any message left by an earlier failure.
func (s *Store) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy--
	s.settled = true
	if err != nil {
		s.lastErr = err.Error()
		return
	}
	s.lastErr = ""
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{Loading: s.busy > 0, Error: s.lastErr}
	switch {
	case s.busy > 0:
		status.State = StateLoading
	case s.lastErr != "":
		status.State = StateErrored
	case s.settled:
		status.State = StateReady
	default:
		status.State = StateIdle
	}
	return status
}
