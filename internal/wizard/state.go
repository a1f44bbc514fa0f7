package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/peermatch/internal/profile"
)

var (
	ErrAlreadyExists    = errors.New("profile already exists")
	ErrNoSession        = errors.New("no active wizard session")
	ErrCommitInProgress = errors.New("profile commit in progress")
	ErrUnknownField     = errors.New("unknown profile field")
)

// ValidationError is returned for input the current state does not accept.
// The session stays where it was so the caller can prompt again.
type ValidationError struct {
	State  State
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %s", e.State, e.Reason)
}

type State int

const (
	Idle State = iota
	AwaitingAffiliation
	AwaitingStage
	AwaitingSkills
	AwaitingInterests
	AwaitingGoals
	Cancelled
)

var stateNames = map[State]string{
	Idle:                "idle",
	AwaitingAffiliation: "awaiting_affiliation",
	AwaitingStage:       "awaiting_stage",
	AwaitingSkills:      "awaiting_skills",
	AwaitingInterests:   "awaiting_interests",
	AwaitingGoals:       "awaiting_goals",
	Cancelled:           "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Awaiting reports whether the state expects input.
func (s State) Awaiting() bool {
	return s >= AwaitingAffiliation && s <= AwaitingGoals
}

// next is the state that follows s in full mode. AwaitingGoals is followed by Idle.
func (s State) next() State {
	if s == AwaitingGoals {
		return Idle
	}
	return s + 1
}

type Mode int

const (
	ModeFull Mode = iota
	ModeSingle
)

func (m Mode) String() string {
	if m == ModeSingle {
		return "single"
	}
	return "full"
}

// Field names a profile field that can be edited on its own.
type Field string

const (
	FieldAffiliation Field = "affiliation"
	FieldStage       Field = "stage"
	FieldSkills      Field = "skills"
	FieldInterests   Field = "interests"
	FieldGoals       Field = "goals"
)

var fieldStates = map[Field]State{
	FieldAffiliation: AwaitingAffiliation,
	FieldStage:       AwaitingStage,
	FieldSkills:      AwaitingSkills,
	FieldInterests:   AwaitingInterests,
	FieldGoals:       AwaitingGoals,
}

// Fields lists the editable fields in wizard order.
func Fields() []Field {
	return []Field{FieldAffiliation, FieldStage, FieldSkills, FieldInterests, FieldGoals}
}

func ParseField(raw string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := fieldStates[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, raw)
	}
	return f, nil
}

// State returns the awaiting state that collects f.
func (f Field) State() State {
	return fieldStates[f]
}

// Intent says why a session is started.
type Intent int

const (
	// IntentCreate refuses to overwrite an existing profile.
	IntentCreate Intent = iota
	// IntentRestart runs the full sequence over an existing profile.
	IntentRestart
	// IntentEdit collects one field of an existing profile and commits.
	IntentEdit
)

// Session is the in-progress elicitation of one person.
type Session struct {
	ID          string
	PersonID    int64
	State       State
	Mode        Mode
	Field       Field
	Collected   profile.Fields
	Language    string
	DisplayName string
	StartedAt   time.Time
}

func (s *Session) snapshot() Session {
	c := *s
	c.Collected = s.Collected.Clone()
	return c
}

// apply stores text into the field collected by the current state.
func (s *Session) apply(text string) error {
	switch s.State {
	case AwaitingSkills:
		s.Collected.Skills = profile.ParseList(text)
		return nil
	case AwaitingInterests:
		s.Collected.Interests = profile.ParseList(text)
		return nil
	}

	value := strings.TrimSpace(text)
	if value == "" {
		return &ValidationError{State: s.State, Reason: "empty answer"}
	}

	switch s.State {
	case AwaitingAffiliation:
		s.Collected.Affiliation = value
	case AwaitingStage:
		s.Collected.Stage = value
	case AwaitingGoals:
		s.Collected.Goals = value
	default:
		return &ValidationError{State: s.State, Reason: "session does not expect input"}
	}
	return nil
}

// done reports whether the session has everything it needs to commit after
// the current state accepted its input.
func (s *Session) done() bool {
	return s.Mode == ModeSingle || s.State.next() == Idle
}
