package session

import (
	"errors"
	"fmt"

	"wondertales/internal/domain/story"
)

var (
	// ErrInvalidTransition is returned when an action is not allowed from the
	// current status. The state is left untouched.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrPageOutOfOrder is returned when an appended page would break the
	// contiguous 1-based numbering of the history.
	ErrPageOutOfOrder = errors.New("page number out of order")
)

type ActionType string

const (
	ActionSetProfile   ActionType = "SET_PROFILE"
	ActionStartLoading ActionType = "START_LOADING"
	ActionAddPage      ActionType = "ADD_PAGE"
	ActionSetError     ActionType = "SET_ERROR"
	ActionClearError   ActionType = "CLEAR_ERROR"
	ActionReset        ActionType = "RESET"
	ActionContinue     ActionType = "CONTINUE"
	ActionHydrate      ActionType = "HYDRATE"
)

// Action is the closed set of session events.
type Action interface {
	Type() ActionType
}

type SetProfile struct{ Profile story.Profile }
type StartLoading struct{}
type AddPage struct{ Page story.Page }
type SetError struct{ Message string }
type ClearError struct{}
type Reset struct{}
type Continue struct{}
type Hydrate struct{ Snapshot Snapshot }

func (SetProfile) Type() ActionType   { return ActionSetProfile }
func (StartLoading) Type() ActionType { return ActionStartLoading }
func (AddPage) Type() ActionType      { return ActionAddPage }
func (SetError) Type() ActionType     { return ActionSetError }
func (ClearError) Type() ActionType   { return ActionClearError }
func (Reset) Type() ActionType        { return ActionReset }
func (Continue) Type() ActionType     { return ActionContinue }
func (Hydrate) Type() ActionType      { return ActionHydrate }

// Reduce is the pure transition function. History only ever shrinks on Reset.
func Reduce(s State, action Action) (State, error) {
	switch a := action.(type) {
	case SetProfile:
		s.Profile = a.Profile
		return s, nil

	case StartLoading:
		s.Status = StatusLoading
		s.Error = ""
		return s, nil

	case AddPage:
		if s.Status != StatusLoading {
			return s, invalid(s, a)
		}
		if want := len(s.Pages) + 1; a.Page.PageNumber != want {
			return s, fmt.Errorf("%w: got %d, want %d", ErrPageOutOfOrder, a.Page.PageNumber, want)
		}
		pages := make([]story.Page, len(s.Pages), len(s.Pages)+1)
		copy(pages, s.Pages)
		s.Pages = append(pages, a.Page)
		s.CurrentPageIndex = len(s.Pages) - 1
		s.Status = StatusReading
		return s, nil

	case SetError:
		s.Status = StatusError
		s.Error = a.Message
		return s, nil

	case ClearError:
		if s.Status != StatusError {
			return s, invalid(s, a)
		}
		s.Error = ""
		if len(s.Pages) > 0 {
			s.Status = StatusReading
			if s.CurrentPageIndex >= len(s.Pages) {
				s.CurrentPageIndex = len(s.Pages) - 1
			}
		} else {
			s.Status = StatusSetup
		}
		return s, nil

	case Reset:
		return Initial(), nil

	case Continue:
		if len(s.Pages) == 0 {
			return s, invalid(s, a)
		}
		s.Status = StatusReading
		s.Error = ""
		s.CurrentPageIndex = len(s.Pages) - 1
		return s, nil

	case Hydrate:
		if s.Status != StatusSetup {
			return s, invalid(s, a)
		}
		return a.Snapshot.State(), nil

	default:
		return s, fmt.Errorf("%w: unknown action %T", ErrInvalidTransition, action)
	}
}

func invalid(s State, a Action) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, a.Type(), s.Status)
}
