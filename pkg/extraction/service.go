package extraction

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/questlabs/quest-profile/pkg/profile"
)

// Service runs the fact pipeline: extract candidates from a finished
// chat turn, resolve them against live profile state, stage genuinely
// new information for user confirmation, and resolve accept/reject
// decisions. Extracted knowledge never reaches the verified profile
// except through Accept.
type Service struct {
	logger    *log.Logger
	extractor FactExtractor
	store     Store
	notifier  Notifier
	timeout   time.Duration
}

type ServiceInput struct {
	Logger    *log.Logger
	Extractor FactExtractor
	Store     Store
	Notifier  Notifier
	Timeout   time.Duration
}

func NewService(input ServiceInput) *Service {
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		logger:    input.Logger,
		extractor: input.Extractor,
		store:     input.Store,
		notifier:  input.Notifier,
		timeout:   timeout,
	}
}

// OnChatTurnCompleted kicks off extraction for a finished turn and
// returns immediately. The chat response is never delayed or failed by
// anything that happens here; failures are logged and the turn simply
// contributes no facts.
func (s *Service) OnChatTurnCompleted(userID, userMessage, assistantResponse, source string) {
	if userID == "" || userMessage == "" {
		return
	}
	if source == "" {
		source = profile.SourceChat
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Fact extraction panicked", "user_id", userID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.ProcessTurn(ctx, userID, userMessage, assistantResponse, source); err != nil {
			s.logger.Error("Fact extraction failed", "user_id", userID, "error", err)
		}
	}()
}

// ProcessTurn is the synchronous body of the pipeline. Exposed so the
// voice webhook path can run it inline under its own deadline.
func (s *Service) ProcessTurn(ctx context.Context, userID, userMessage, assistantResponse, source string) error {
	userProfile, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.recordTranscripts(ctx, userID, userMessage, assistantResponse, source); err != nil {
		// Audit trail only; extraction still proceeds.
		s.logger.Warn("Failed to record transcripts", "user_id", userID, "error", err)
	}

	candidates, err := s.extractor.ExtractFacts(ctx, userMessage)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		s.logger.Debug("No facts extracted", "user_id", userID)
		return nil
	}

	facts, err := s.store.ListFacts(ctx, userID)
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		if candidate.Confidence < MinConfidence {
			s.logger.Debug("Dropping low-confidence candidate",
				"user_id", userID, "fact_type", candidate.Type, "confidence", candidate.Confidence)
			continue
		}

		resolution := Resolve(candidate, userProfile, facts)
		if !resolution.IsNew {
			s.logger.Debug("Candidate already known, skipping",
				"user_id", userID, "fact_type", candidate.Type, "value", candidate.Value)
			continue
		}

		confirmation := profile.PendingConfirmation{
			FactType:          candidate.Type,
			OldValue:          resolution.OldValue,
			NewValue:          candidate.Value,
			Source:            source,
			Confidence:        candidate.Confidence,
			UserMessage:       userMessage,
			AssistantResponse: assistantResponse,
		}

		stored, err := s.store.AppendPendingConfirmation(ctx, userID, confirmation)
		if err != nil {
			return err
		}
		s.logger.Info("Staged profile suggestion",
			"user_id", userID, "fact_type", stored.FactType, "confirmation_id", stored.ID)

		if err := s.notifier.SuggestionCreated(userID, *stored); err != nil {
			s.logger.Warn("Failed to publish suggestion event", "user_id", userID, "error", err)
		}
	}

	return nil
}

func (s *Service) recordTranscripts(ctx context.Context, userID, userMessage, assistantResponse, source string) error {
	entries := []profile.Transcript{
		{Role: "user", Content: userMessage, Source: source},
	}
	if assistantResponse != "" {
		entries = append(entries, profile.Transcript{Role: "assistant", Content: assistantResponse, Source: source})
	}
	return s.store.AppendTranscripts(ctx, userID, entries...)
}

// ListVerifiedFacts returns the user's verified fact log.
func (s *Service) ListVerifiedFacts(ctx context.Context, userID string) ([]profile.Fact, error) {
	return s.store.ListFacts(ctx, userID)
}

// ListPendingConfirmations returns the user's unresolved suggestions.
func (s *Service) ListPendingConfirmations(ctx context.Context, userID string) ([]profile.PendingConfirmation, error) {
	return s.store.ListPendingConfirmations(ctx, userID)
}

// AcceptConfirmation promotes a pending suggestion into the verified
// profile. Unknown ids are a no-op (already resolved on another device).
func (s *Service) AcceptConfirmation(ctx context.Context, userID string, confirmationID string) error {
	fact, confirmation, err := s.store.AcceptConfirmation(ctx, userID, confirmationID)
	if err != nil {
		return err
	}
	if fact == nil || confirmation == nil {
		s.logger.Debug("Accept on unknown confirmation, no-op", "user_id", userID, "confirmation_id", confirmationID)
		return nil
	}

	s.logger.Info("Confirmation accepted",
		"user_id", userID, "confirmation_id", confirmationID, "fact_type", fact.FactType)

	if err := s.notifier.FactVerified(userID, confirmationID, *fact); err != nil {
		s.logger.Warn("Failed to publish verified event", "user_id", userID, "error", err)
	}
	return nil
}

// RejectConfirmation discards a pending suggestion with no further
// effect. Unknown ids are a no-op.
func (s *Service) RejectConfirmation(ctx context.Context, userID string, confirmationID string) error {
	removed, err := s.store.RejectConfirmation(ctx, userID, confirmationID)
	if err != nil {
		return err
	}
	if removed {
		s.logger.Info("Confirmation rejected", "user_id", userID, "confirmation_id", confirmationID)
	}
	return nil
}
