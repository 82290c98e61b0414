package profile

import "time"

// Fact types the extractor is allowed to emit. The set is open-ended:
// unknown types are stored and compared against the fact log like any
// other generic type.
const (
	FactTypeDestination  = "destination"
	FactTypeOrigin       = "origin"
	FactTypeTimeline     = "timeline"
	FactTypeNationality  = "nationality"
	FactTypeBudget       = "budget"
	FactTypeProfession   = "profession"
	FactTypeFamilyStatus = "family_status"
)

const (
	SourceChat     = "chat"
	SourceVoice    = "voice"
	SourceUserEdit = "user_edit"
)

// UserProfile is the durable, user-visible profile. Scalar slots are
// overwritten in place; destination_countries only accumulates.
type UserProfile struct {
	ID                   string   `json:"id"`
	FirstName            *string  `json:"first_name,omitempty"`
	CurrentCountry       *string  `json:"current_country,omitempty"`
	Nationality          *string  `json:"nationality,omitempty"`
	Timeline             *string  `json:"timeline,omitempty"`
	BudgetMonthly        *float64 `json:"budget_monthly,omitempty"`
	DestinationCountries []string `json:"destination_countries"`
}

// Fact is a verified profile attribute. Facts are append-only: accepting
// a new value for a type adds an entry rather than replacing the old one.
type Fact struct {
	ID             string    `json:"id"`
	FactType       string    `json:"fact_type"`
	FactValue      string    `json:"fact_value"`
	Source         string    `json:"source"`
	Confidence     float64   `json:"confidence"`
	IsUserVerified bool      `json:"is_user_verified"`
	ExtractedAt    time.Time `json:"extracted_at"`
}

// PendingConfirmation is a candidate fact staged for explicit user
// approval. It is the only path by which extracted knowledge can reach
// the verified profile.
type PendingConfirmation struct {
	ID                string    `json:"id"`
	FactType          string    `json:"fact_type"`
	OldValue          *string   `json:"old_value"`
	NewValue          string    `json:"new_value"`
	Source            string    `json:"source"`
	Confidence        float64   `json:"confidence"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	CreatedAt         time.Time `json:"created_at"`
}

// Transcript is one chat or voice turn kept for audit.
type Transcript struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileUpdate carries a direct user edit. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName            *string
	CurrentCountry       *string
	Nationality          *string
	Timeline             *string
	BudgetMonthly        *float64
	DestinationCountries []string
}
