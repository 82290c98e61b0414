package extraction

import (
	"context"

	"github.com/questlabs/quest-profile/pkg/profile"
)

// Store is the slice of the profile repository this pipeline needs.
// Tests substitute an in-memory fake.
type Store interface {
	GetOrCreate(ctx context.Context, userID string) (*profile.UserProfile, error)
	ListFacts(ctx context.Context, userID string) ([]profile.Fact, error)
	ListPendingConfirmations(ctx context.Context, userID string) ([]profile.PendingConfirmation, error)
	AppendPendingConfirmation(ctx context.Context, userID string, confirmation profile.PendingConfirmation) (*profile.PendingConfirmation, error)
	AcceptConfirmation(ctx context.Context, userID string, confirmationID string) (*profile.Fact, *profile.PendingConfirmation, error)
	RejectConfirmation(ctx context.Context, userID string, confirmationID string) (bool, error)
	AppendTranscripts(ctx context.Context, userID string, entries ...profile.Transcript) error
}

// FactExtractor maps one user message to candidate facts.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, userMessage string) ([]Candidate, error)
}

// Notifier pushes queue transitions to any connected profile UI.
type Notifier interface {
	SuggestionCreated(userID string, confirmation profile.PendingConfirmation) error
	FactVerified(userID string, confirmationID string, fact profile.Fact) error
}
