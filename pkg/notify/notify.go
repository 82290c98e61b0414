package notify

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/questlabs/quest-profile/pkg/profile"
)

// Per-user subjects for queue transitions. The SSE layer subscribes to
// these and relays them as named events.
const (
	SuggestionSubjectPrefix = "profile.suggestion."
	VerifiedSubjectPrefix   = "profile.verified."

	EventProfileSuggestion = "profile_suggestion"
	EventProfileVerified   = "profile_verified"
)

func SuggestionSubject(userID string) string {
	return SuggestionSubjectPrefix + userID
}

func VerifiedSubject(userID string) string {
	return VerifiedSubjectPrefix + userID
}

// SuggestionEvent is the payload for profile_suggestion.
type SuggestionEvent struct {
	UserID       string                      `json:"user_id"`
	Confirmation profile.PendingConfirmation `json:"confirmation"`
}

// VerifiedEvent is the payload for profile_verified.
type VerifiedEvent struct {
	UserID         string       `json:"user_id"`
	ConfirmationID string       `json:"confirmation_id"`
	Fact           profile.Fact `json:"fact"`
}

type Service struct {
	nc *nats.Conn
}

func NewService(nc *nats.Conn) *Service {
	return &Service{nc: nc}
}

func (s *Service) SuggestionCreated(userID string, confirmation profile.PendingConfirmation) error {
	return s.publish(SuggestionSubject(userID), SuggestionEvent{
		UserID:       userID,
		Confirmation: confirmation,
	})
}

func (s *Service) FactVerified(userID string, confirmationID string, fact profile.Fact) error {
	return s.publish(VerifiedSubject(userID), VerifiedEvent{
		UserID:         userID,
		ConfirmationID: confirmationID,
		Fact:           fact,
	})
}

func (s *Service) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.nc.Publish(subject, data)
}
