package core

import "fmt"

// ApprovalStep is one executed approval level with its resolved actors.
type ApprovalStep struct {
	Number  int
	Policy  Policy
	Outcome Outcome

	actors []*User
	cursor int
	// remaining is how many steps were still queued when this one was produced.
	remaining int
	labels    Labels
}

// Actors returns every resolved actor, including those already dequeued.
func (s *ApprovalStep) Actors() []*User {
	return append([]*User(nil), s.actors...)
}

// Remaining returns the number of flow steps queued after this one.
func (s *ApprovalStep) Remaining() int {
	return s.remaining
}

// Terminal reports whether this is the last step of the flow.
func (s *ApprovalStep) Terminal() bool {
	return s.remaining == 0
}

// Pending returns the number of actors not yet dequeued.
func (s *ApprovalStep) Pending() int {
	return len(s.actors) - s.cursor
}

// HasNext reports whether another actor remains.
func (s *ApprovalStep) HasNext() bool {
	return s.cursor < len(s.actors)
}

// Next dequeues the next actor. It returns ErrNoActors when none remain.
func (s *ApprovalStep) Next() (*UserStep, error) {
	if !s.HasNext() {
		return nil, ErrNoActors
	}
	u := s.actors[s.cursor]
	s.cursor++

	us := &UserStep{
		Number:  s.Number,
		User:    u,
		Outcome: s.Outcome,
		Result:  OutcomeApprove,
		labels:  s.labels,
	}
	// A revoke flow has the applicant revoke at every step.
	if s.Terminal() || s.Outcome == OutcomeRevoke {
		us.Result = s.Outcome
	}
	us.Expected = s.expect(s.Pending())
	return us, nil
}

// expect computes the status after an action, given the co-signers
// still pending in this step.
func (s *ApprovalStep) expect(pending int) string {
	switch {
	case s.Outcome == OutcomeRevoke:
		return s.labels.Revoked
	case s.Outcome == OutcomeUnauthorized || pending > 0:
		return s.labels.AwaitingLevel(s.Number)
	case s.Terminal() && s.Outcome.IsDenial():
		return s.labels.Denied
	case s.Outcome == OutcomeReject && s.remaining == 1:
		// First observation of the repeated step; the reject follows.
		return s.labels.AwaitingLevel(s.Number)
	case s.Terminal():
		return s.labels.Approved
	default:
		return s.labels.AwaitingLevel(s.Number + 1)
	}
}

func (s *ApprovalStep) String() string {
	return fmt.Sprintf("step %d (%s): %d actor(s), %d step(s) queued", s.Number, s.Policy, len(s.actors), s.remaining)
}

// UserStep is one actor's action within an approval step.
type UserStep struct {
	Number int
	User   *User
	// Outcome is the flow's configured outcome.
	Outcome Outcome
	// Result is what this actor submits: Approve unless this is the last
	// step of the flow or the flow revokes.
	Result Outcome
	// Expected is the status label the record must show after the action.
	Expected string

	labels Labels
}

// Notifications returns the messages the applicant should receive for this
// action. Best effort only; the CRM does not guarantee their order.
func (u *UserStep) Notifications() []string {
	name := ""
	if u.User != nil {
		name = u.User.Name
	}
	if u.Result == OutcomeReject {
		return []string{
			fmt.Sprintf(u.labels.Reviewed, u.Number, name, OutcomeApprove.Label()),
			fmt.Sprintf(u.labels.Rejected, name),
		}
	}
	return []string{fmt.Sprintf(u.labels.Reviewed, u.Number, name, u.Result.Label())}
}

func (u *UserStep) String() string {
	return fmt.Sprintf("step %d; actor: %s; result: %s; expect: %s", u.Number, u.User, u.Result, u.Expected)
}
