package history

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/headline-ai/headline-server/internal/common"
)

// Agent produces the AI reply for one user turn. The thread id scopes any
// continuation state the agent keeps between turns of the same conversation.
type Agent interface {
	Run(ctx context.Context, query, threadID string) (string, error)
}

// Service enforces the conversation rules: at most one active conversation
// per user, append-only ordered history, and turns appended atomically.
type Service struct {
	repo  *Repo
	agent Agent
	log   zerolog.Logger
}

func NewService(repo *Repo, agent Agent, log zerolog.Logger) *Service {
	return &Service{repo: repo, agent: agent, log: log.With().Str("component", "history").Logger()}
}

// StartNewConversation deactivates whatever the user had active and creates a
// fresh active conversation. Both writes commit in one transaction so the
// single-active invariant holds even if the create fails.
func (s *Service) StartNewConversation(ctx context.Context, userID uint64) (*Conversation, error) {
	cid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	conv := &Conversation{
		ConversationID: cid,
		UserID:         userID,
		IsActive:       true,
	}
	err = s.repo.Transaction(ctx, func(tx *Repo) error {
		if err := tx.DeactivateUserConversations(ctx, userID); err != nil {
			return err
		}
		return tx.CreateConversation(ctx, conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetOrCreateActive returns the user's active conversation, creating one if
// none exists. Every agent turn goes through here so it always has a
// conversation to append to.
func (s *Service) GetOrCreateActive(ctx context.Context, userID uint64) (*Conversation, error) {
	conv, err := s.repo.GetActiveConversation(ctx, userID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.StartNewConversation(ctx, userID)
}

// ResumeConversation reactivates an old conversation of the user, deactivating
// the currently active one in the same transaction, and returns its history.
func (s *Service) ResumeConversation(ctx context.Context, userID uint64, conversationID string) (*ConversationHistory, error) {
	err := s.repo.Transaction(ctx, func(tx *Repo) error {
		conv, err := tx.GetConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.UserID != userID {
			// hide existence
			return ErrNotFound
		}
		if err := tx.DeactivateUserConversations(ctx, conv.UserID); err != nil {
			return err
		}
		_, err = tx.SetConversationActive(ctx, conversationID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetHistory(ctx, conversationID)
}

// ExitConversation marks the conversation inactive.
func (s *Service) ExitConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	return s.repo.SetConversationActive(ctx, conversationID, false)
}

// ActivateConversation flips the flag on; other conversations of the owner
// are deactivated in the same transaction to keep the invariant.
func (s *Service) ActivateConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var out *Conversation
	err := s.repo.Transaction(ctx, func(tx *Repo) error {
		conv, err := tx.GetConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		if err := tx.DeactivateUserConversations(ctx, conv.UserID); err != nil {
			return err
		}
		out, err = tx.SetConversationActive(ctx, conversationID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeactivateConversation flips the flag off.
func (s *Service) DeactivateConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	return s.repo.SetConversationActive(ctx, conversationID, false)
}

// AppendTurn appends one message to the log.
func (s *Service) AppendTurn(ctx context.Context, conversationID, role, content string) (*Message, error) {
	if _, err := s.repo.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	m := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetHistory returns the conversation and its messages in creation order.
func (s *Service) GetHistory(ctx context.Context, conversationID string) (*ConversationHistory, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &ConversationHistory{
		ConversationID: conv.ConversationID,
		UserID:         conv.UserID,
		CreatedAt:      conv.CreatedAt,
		IsActive:       conv.IsActive,
		Messages:       msgs,
	}, nil
}

// DeleteConversation removes the conversation and cascades to its messages.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.repo.Transaction(ctx, func(tx *Repo) error {
		return tx.DeleteConversation(ctx, conversationID)
	})
}

func (s *Service) ListUserConversations(ctx context.Context, userID uint64) ([]Conversation, error) {
	return s.repo.ListUserConversations(ctx, userID)
}

// UpdateMessage changes message content only. Role and conversation are
// immutable. Fails with ErrForbidden when the requester does not own the
// parent conversation.
func (s *Service) UpdateMessage(ctx context.Context, userID, messageID uint64, content string) (*Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conv, err := s.repo.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrForbidden
	}
	return s.repo.UpdateMessageContent(ctx, messageID, content)
}

// RunAgentTurn resolves (or creates) the user's active conversation, runs the
// agent with the conversation id as thread key, and appends the full turn —
// human query plus AI reply — in a single transaction. An agent failure
// persists nothing, so no dangling human-only turn is left behind.
func (s *Service) RunAgentTurn(ctx context.Context, userID uint64, query string) (*Conversation, []Message, error) {
	conv, err := s.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	reply, err := s.agent.Run(ctx, query, conv.ConversationID)
	if err != nil {
		s.log.Error().Err(err).
			Str("conversation_id", conv.ConversationID).
			Uint64("user_id", userID).
			Msg("agent run failed")
		return nil, nil, err
	}

	human := &Message{ConversationID: conv.ConversationID, Role: RoleHuman, Content: query}
	ai := &Message{ConversationID: conv.ConversationID, Role: RoleAI, Content: reply}
	err = s.repo.Transaction(ctx, func(tx *Repo) error {
		if err := tx.InsertMessage(ctx, human); err != nil {
			return err
		}
		return tx.InsertMessage(ctx, ai)
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, []Message{*human, *ai}, nil
}

// RunAgentTurnOnConversation is the worker-side variant: the conversation is
// fixed by the job rather than resolved from the active flag.
func (s *Service) RunAgentTurnOnConversation(ctx context.Context, userID uint64, conversationID, query string) (uint64, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if conv.UserID != userID {
		return 0, ErrNotFound
	}

	reply, err := s.agent.Run(ctx, query, conversationID)
	if err != nil {
		return 0, err
	}

	human := &Message{ConversationID: conversationID, Role: RoleHuman, Content: query}
	ai := &Message{ConversationID: conversationID, Role: RoleAI, Content: reply}
	err = s.repo.Transaction(ctx, func(tx *Repo) error {
		if err := tx.InsertMessage(ctx, human); err != nil {
			return err
		}
		return tx.InsertMessage(ctx, ai)
	})
	if err != nil {
		return 0, err
	}
	return ai.ID, nil
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *TurnJob) (*TurnJob, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*TurnJob, error) {
	return s.repo.GetJobByID(ctx, jobID)
}
