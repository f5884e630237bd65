package session

import (
	"wondertales/internal/domain/story"
)

type Status string

const (
	StatusSetup   Status = "setup"
	StatusLoading Status = "loading"
	StatusReading Status = "reading"
	StatusError   Status = "error"
)

// Transient reports whether the status must never be restored from a snapshot.
func (s Status) Transient() bool {
	return s == StatusLoading || s == StatusError
}

// State is the single source of truth for a session.
type State struct {
	Status           Status
	Pages            []story.Page
	CurrentPageIndex int
	Profile          story.Profile
	Error            string
}

// Initial returns the state every session begins in.
func Initial() State {
	return State{
		Status:  StatusSetup,
		Profile: story.DefaultProfile(),
	}
}

// CurrentPage returns the page under the cursor, if any.
func (s State) CurrentPage() (story.Page, bool) {
	if s.CurrentPageIndex < 0 || s.CurrentPageIndex >= len(s.Pages) {
		return story.Page{}, false
	}
	return s.Pages[s.CurrentPageIndex], true
}

// LastPage returns the most recently appended page, if any.
func (s State) LastPage() (story.Page, bool) {
	if len(s.Pages) == 0 {
		return story.Page{}, false
	}
	return s.Pages[len(s.Pages)-1], true
}

// Snapshot is the durable form of a session. It has no error field: errors
// are transient and never survive a reload.
type Snapshot struct {
	Status           Status        `json:"status"`
	Pages            []story.Page  `json:"pages"`
	CurrentPageIndex int           `json:"currentPageIndex"`
	Profile          story.Profile `json:"profile"`
}

// Snapshot returns the persistable view of the state.
func (s State) Snapshot() Snapshot {
	return Snapshot{
		Status:           s.Status,
		Pages:            s.Pages,
		CurrentPageIndex: s.CurrentPageIndex,
		Profile:          s.Profile,
	}
}

// Recovered coerces a snapshot so it never reopens into a transient status:
// loading and error become reading when there is history, setup otherwise.
// The cursor is clamped onto the history.
func (s Snapshot) Recovered() Snapshot {
	if s.Status == "" || s.Status.Transient() {
		if len(s.Pages) > 0 {
			s.Status = StatusReading
		} else {
			s.Status = StatusSetup
		}
	}
	if s.Status == StatusReading && len(s.Pages) == 0 {
		s.Status = StatusSetup
	}
	switch {
	case len(s.Pages) == 0:
		s.CurrentPageIndex = 0
	case s.CurrentPageIndex < 0:
		s.CurrentPageIndex = 0
	case s.CurrentPageIndex >= len(s.Pages):
		s.CurrentPageIndex = len(s.Pages) - 1
	}
	return s
}

// State turns a recovered snapshot back into a session state.
func (s Snapshot) State() State {
	r := s.Recovered()
	profile := r.Profile
	if profile == (story.Profile{}) {
		profile = story.DefaultProfile()
	}
	return State{
		Status:           r.Status,
		Pages:            append([]story.Page(nil), r.Pages...),
		CurrentPageIndex: r.CurrentPageIndex,
		Profile:          profile,
	}
}
