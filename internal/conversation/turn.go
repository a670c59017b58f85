package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/qmuntal/stateless"

	"github.com/itsAakanksha/career-counselor-ai/internal/chat"
	"github.com/itsAakanksha/career-counselor-ai/internal/logger"
)

// State is a step of a turn.
type State string

const (
	StateIdle                  State = "Idle"
	StateValidating            State = "Validating"
	StateEnsuringSession       State = "EnsuringSession"
	StatePersistingUserMessage State = "PersistingUserMessage"
	StateRetitling             State = "Retitling"
	StateFetchingHistory       State = "FetchingHistory"
	StateAwaitingReply         State = "AwaitingReply"
	StatePersistingReply       State = "PersistingReply"
	StateTouchingSession       State = "TouchingSession"
	StateCompleted             State = "Completed" // terminal
	StateFailed                State = "Failed"    // terminal
)

// Trigger moves a turn from one State to the next.
type Trigger string

const (
	TriggerSubmit           Trigger = "Submit"
	TriggerValidated        Trigger = "Validated"
	TriggerSessionReady     Trigger = "SessionReady"
	TriggerUserPersisted    Trigger = "UserPersisted"
	TriggerTitleSettled     Trigger = "TitleSettled"
	TriggerHistoryLoaded    Trigger = "HistoryLoaded"
	TriggerReplyReceived    Trigger = "ReplyReceived"
	TriggerReplyPersisted   Trigger = "ReplyPersisted"
	TriggerActivityRecorded Trigger = "ActivityRecorded"
	TriggerFail             Trigger = "Fail"
)

// TurnError reports a failed turn. When UserMessage is set the user's
// message was persisted but no reply exists; the caller should let the user
// retry with a new turn rather than resubmit silently.
type TurnError struct {
	State       State
	SessionID   string
	UserMessage *chat.Message
	Err         error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed in %s: %v", e.State, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// UserMessagePersisted reports whether err is a turn failure that left the
// user's message stored without a reply.
func UserMessagePersisted(err error) bool {
	var te *TurnError
	return errors.As(err, &te) && te.UserMessage != nil
}

// turn carries the data one SendMessage call accumulates as it moves
// through the machine.
type turn struct {
	in      SendMessageInput
	owner   string
	session *chat.Session
	user    *chat.Message
	history []chat.Message
	reply   chat.Reply
	answer  *chat.Message

	next     Trigger
	err      error
	failedIn State
}

type step func(ctx context.Context, t *turn) (Trigger, error)

// newTurnMachine wires the turn's states. Each state's entry action runs
// its step and records the trigger to fire next; runTurn does the firing.
func (s *Service) newTurnMachine(t *turn) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateValidating)

	chain := []struct {
		state State
		run   step
		done  Trigger
		to    State
	}{
		{StateValidating, s.validate, TriggerValidated, StateEnsuringSession},
		{StateEnsuringSession, s.ensureSession, TriggerSessionReady, StatePersistingUserMessage},
		{StatePersistingUserMessage, s.persistUserMessage, TriggerUserPersisted, StateRetitling},
		{StateRetitling, s.retitle, TriggerTitleSettled, StateFetchingHistory},
		{StateFetchingHistory, s.fetchHistory, TriggerHistoryLoaded, StateAwaitingReply},
		{StateAwaitingReply, s.awaitReply, TriggerReplyReceived, StatePersistingReply},
		{StatePersistingReply, s.persistReply, TriggerReplyPersisted, StateTouchingSession},
		{StateTouchingSession, s.touchSession, TriggerActivityRecorded, StateCompleted},
	}
	for _, c := range chain {
		fsm.Configure(c.state).
			OnEntry(enter(t, c.state, c.run)).
			Permit(c.done, c.to).
			Permit(TriggerFail, StateFailed)
	}

	fsm.Configure(StateCompleted).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.FromContext(ctx).Info("turn completed", "session_id", t.session.ID, "message_id", t.answer.ID)
			return nil
		})

	fsm.Configure(StateFailed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			log := logger.FromContext(ctx).With("state", t.failedIn, "error", t.err)
			if t.user != nil {
				log.Error("turn failed after user message was stored", "session_id", t.session.ID, "message_id", t.user.ID)
			} else {
				log.Warn("turn rejected")
			}
			return nil
		})

	return fsm
}

func enter(t *turn, state State, run step) func(ctx context.Context, args ...any) error {
	return func(ctx context.Context, _ ...any) error {
		logger.FromContext(ctx).Debug("turn: entering state", "state", state)
		next, err := run(ctx, t)
		if err != nil {
			t.err = err
			t.failedIn = state
			next = TriggerFail
		}
		t.next = next
		return nil
	}
}

// runTurn fires triggers until the machine reaches a terminal state.
func (s *Service) runTurn(ctx context.Context, t *turn) (*chat.Message, error) {
	fsm := s.newTurnMachine(t)

	t.next = TriggerSubmit
	for {
		if err := fsm.FireCtx(ctx, t.next); err != nil {
			return nil, fmt.Errorf("turn state machine: %w", err)
		}
		state, err := fsm.State(ctx)
		if err != nil {
			return nil, fmt.Errorf("turn state machine: %w", err)
		}
		switch state {
		case StateCompleted:
			return t.answer, nil
		case StateFailed:
			te := &TurnError{State: t.failedIn, UserMessage: t.user, Err: t.err}
			if t.session != nil {
				te.SessionID = t.session.ID
			}
			return nil, te
		}
	}
}
