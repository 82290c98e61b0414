package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

// ErrConcurrentUpdate is returned when a row keeps changing under a
// read-modify-write faster than the retry budget allows.
var ErrConcurrentUpdate = errors.New("profile row changed concurrently")

const (
	casMaxRetries = 5

	// transcriptCap bounds the audit log column.
	transcriptCap = 200
)

// Repository persists user profiles in a single SQLite row per user.
// Facts, pending confirmations and transcripts live in JSON array
// columns, mirroring the profile document the UI consumes. Every
// mutation is a whole-row read-modify-write guarded by a version
// column, so concurrent accept/reject calls for the same user cannot
// silently drop entries.
type Repository struct {
	db     *sqlx.DB
	logger *log.Logger
}

func NewRepository(db *sqlx.DB, logger *log.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type dbUser struct {
	ID                   string          `db:"id"`
	FirstName            sql.NullString  `db:"first_name"`
	CurrentCountry       sql.NullString  `db:"current_country"`
	Nationality          sql.NullString  `db:"nationality"`
	Timeline             sql.NullString  `db:"timeline"`
	BudgetMonthly        sql.NullFloat64 `db:"budget_monthly"`
	DestinationCountries string          `db:"destination_countries"`
	Facts                string          `db:"facts"`
	PendingConfirmations string          `db:"pending_confirmations"`
	Transcripts          string          `db:"transcripts"`
	Version              int64           `db:"version"`
}

// userRecord is the in-memory shape a mutation works on.
type userRecord struct {
	Profile              UserProfile
	Facts                []Fact
	PendingConfirmations []PendingConfirmation
	Transcripts          []Transcript
	version              int64
}

const selectUserColumns = `
	SELECT id, first_name, current_country, nationality, timeline,
	       budget_monthly, destination_countries, facts,
	       pending_confirmations, transcripts, version
	FROM users WHERE id = ?
`

func (r *Repository) load(ctx context.Context, userID string) (*userRecord, error) {
	var row dbUser
	err := r.db.GetContext(ctx, &row, selectUserColumns, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	return rowToRecord(&row)
}

func rowToRecord(row *dbUser) (*userRecord, error) {
	rec := &userRecord{
		Profile: UserProfile{
			ID:             row.ID,
			FirstName:      nullToPtr(row.FirstName),
			CurrentCountry: nullToPtr(row.CurrentCountry),
			Nationality:    nullToPtr(row.Nationality),
			Timeline:       nullToPtr(row.Timeline),
		},
		version: row.Version,
	}
	if row.BudgetMonthly.Valid {
		rec.Profile.BudgetMonthly = &row.BudgetMonthly.Float64
	}

	if err := json.Unmarshal([]byte(row.DestinationCountries), &rec.Profile.DestinationCountries); err != nil {
		return nil, fmt.Errorf("failed to decode destination_countries: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Facts), &rec.Facts); err != nil {
		return nil, fmt.Errorf("failed to decode facts: %w", err)
	}
	if err := json.Unmarshal([]byte(row.PendingConfirmations), &rec.PendingConfirmations); err != nil {
		return nil, fmt.Errorf("failed to decode pending_confirmations: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Transcripts), &rec.Transcripts); err != nil {
		return nil, fmt.Errorf("failed to decode transcripts: %w", err)
	}
	return rec, nil
}

func nullToPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func ptrToNull(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func (r *Repository) ensure(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure user %s: %w", userID, err)
	}
	return nil
}

// save writes the record back iff the version column is unchanged.
func (r *Repository) save(ctx context.Context, rec *userRecord) (bool, error) {
	destinations, err := json.Marshal(rec.Profile.DestinationCountries)
	if err != nil {
		return false, fmt.Errorf("failed to encode destination_countries: %w", err)
	}
	facts, err := json.Marshal(rec.Facts)
	if err != nil {
		return false, fmt.Errorf("failed to encode facts: %w", err)
	}
	pending, err := json.Marshal(rec.PendingConfirmations)
	if err != nil {
		return false, fmt.Errorf("failed to encode pending_confirmations: %w", err)
	}
	transcripts, err := json.Marshal(rec.Transcripts)
	if err != nil {
		return false, fmt.Errorf("failed to encode transcripts: %w", err)
	}

	var budget any
	if rec.Profile.BudgetMonthly != nil {
		budget = *rec.Profile.BudgetMonthly
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET first_name = ?, current_country = ?, nationality = ?,
		    timeline = ?, budget_monthly = ?, destination_countries = ?,
		    facts = ?, pending_confirmations = ?, transcripts = ?,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?
	`,
		ptrToNull(rec.Profile.FirstName),
		ptrToNull(rec.Profile.CurrentCountry),
		ptrToNull(rec.Profile.Nationality),
		ptrToNull(rec.Profile.Timeline),
		budget,
		string(destinations),
		string(facts),
		string(pending),
		string(transcripts),
		rec.Profile.ID,
		rec.version,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user %s: %w", rec.Profile.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// mutate runs fn against the current row state and writes the result
// back, retrying on version conflicts.
func (r *Repository) mutate(ctx context.Context, userID string, fn func(*userRecord) error) error {
	if err := r.ensure(ctx, userID); err != nil {
		return err
	}

	for attempt := 0; attempt < casMaxRetries; attempt++ {
		rec, err := r.load(ctx, userID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("user %s disappeared during update", userID)
		}

		if err := fn(rec); err != nil {
			return err
		}

		saved, err := r.save(ctx, rec)
		if err != nil {
			return err
		}
		if saved {
			return nil
		}
		r.logger.Debug("Version conflict on profile update, retrying", "user_id", userID, "attempt", attempt+1)
	}

	return ErrConcurrentUpdate
}

// GetOrCreate returns the user's profile, creating an empty row on
// first touch.
func (r *Repository) GetOrCreate(ctx context.Context, userID string) (*UserProfile, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return nil, err
	}
	rec, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("user %s not found after create", userID)
	}
	return &rec.Profile, nil
}

// Get returns the profile or nil when the user has no row yet.
func (r *Repository) Get(ctx context.Context, userID string) (*UserProfile, error) {
	rec, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return &rec.Profile, nil
}

// ListFacts returns the verified fact log, oldest first.
func (r *Repository) ListFacts(ctx context.Context, userID string) ([]Fact, error) {
	rec, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return []Fact{}, nil
	}
	return rec.Facts, nil
}

// ListPendingConfirmations returns the unresolved suggestion queue.
func (r *Repository) ListPendingConfirmations(ctx context.Context, userID string) ([]PendingConfirmation, error) {
	rec, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return []PendingConfirmation{}, nil
	}
	return rec.PendingConfirmations, nil
}

// ListTranscripts returns up to limit of the most recent turns.
func (r *Repository) ListTranscripts(ctx context.Context, userID string, limit int) ([]Transcript, error) {
	rec, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return []Transcript{}, nil
	}
	transcripts := rec.Transcripts
	if limit > 0 && len(transcripts) > limit {
		transcripts = transcripts[len(transcripts)-limit:]
	}
	return transcripts, nil
}

// AppendPendingConfirmation stages a suggestion. The stored entry gets a
// fresh id and timestamp; duplicates for the same fact_type are allowed
// and resolved by the user.
func (r *Repository) AppendPendingConfirmation(ctx context.Context, userID string, confirmation PendingConfirmation) (*PendingConfirmation, error) {
	if confirmation.ID == "" {
		confirmation.ID = uuid.New().String()
	}
	if confirmation.CreatedAt.IsZero() {
		confirmation.CreatedAt = time.Now().UTC()
	}

	err := r.mutate(ctx, userID, func(rec *userRecord) error {
		rec.PendingConfirmations = append(rec.PendingConfirmations, confirmation)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &confirmation, nil
}

// AcceptConfirmation promotes a pending confirmation into the verified
// fact log and reflects it into the profile, in one guarded write. An
// unknown id is a no-op and returns (nil, nil, nil).
func (r *Repository) AcceptConfirmation(ctx context.Context, userID string, confirmationID string) (*Fact, *PendingConfirmation, error) {
	var accepted *PendingConfirmation
	var created *Fact

	err := r.mutate(ctx, userID, func(rec *userRecord) error {
		accepted = nil
		created = nil

		confirmation, found := lo.Find(rec.PendingConfirmations, func(c PendingConfirmation) bool {
			return c.ID == confirmationID
		})
		if !found {
			return nil
		}

		// A human confirmed it: confidence becomes 1.0, the original
		// extraction source is retained.
		fact := Fact{
			ID:             uuid.New().String(),
			FactType:       confirmation.FactType,
			FactValue:      confirmation.NewValue,
			Source:         confirmation.Source,
			Confidence:     1.0,
			IsUserVerified: true,
			ExtractedAt:    time.Now().UTC(),
		}
		rec.Facts = append(rec.Facts, fact)
		applyFactToProfile(&rec.Profile, fact)

		rec.PendingConfirmations = lo.Reject(rec.PendingConfirmations, func(c PendingConfirmation, _ int) bool {
			return c.ID == confirmationID
		})

		accepted = &confirmation
		created = &fact
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, accepted, nil
}

// RejectConfirmation drops a pending confirmation. Returns false for an
// unknown id (already resolved elsewhere); that is not an error.
func (r *Repository) RejectConfirmation(ctx context.Context, userID string, confirmationID string) (bool, error) {
	removed := false
	err := r.mutate(ctx, userID, func(rec *userRecord) error {
		before := len(rec.PendingConfirmations)
		rec.PendingConfirmations = lo.Reject(rec.PendingConfirmations, func(c PendingConfirmation, _ int) bool {
			return c.ID == confirmationID
		})
		removed = len(rec.PendingConfirmations) < before
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// AppendTranscripts records chat/voice turns for audit, keeping only the
// most recent entries.
func (r *Repository) AppendTranscripts(ctx context.Context, userID string, entries ...Transcript) error {
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.New().String()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
	}

	return r.mutate(ctx, userID, func(rec *userRecord) error {
		rec.Transcripts = append(rec.Transcripts, entries...)
		if len(rec.Transcripts) > transcriptCap {
			rec.Transcripts = rec.Transcripts[len(rec.Transcripts)-transcriptCap:]
		}
		return nil
	})
}

// UpdateProfile applies a direct user edit. This path legitimately
// bypasses the confirmation queue.
func (r *Repository) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*UserProfile, error) {
	var updated UserProfile
	err := r.mutate(ctx, userID, func(rec *userRecord) error {
		if update.FirstName != nil {
			rec.Profile.FirstName = update.FirstName
		}
		if update.CurrentCountry != nil {
			rec.Profile.CurrentCountry = update.CurrentCountry
		}
		if update.Nationality != nil {
			rec.Profile.Nationality = update.Nationality
		}
		if update.Timeline != nil {
			rec.Profile.Timeline = update.Timeline
		}
		if update.BudgetMonthly != nil {
			rec.Profile.BudgetMonthly = update.BudgetMonthly
		}
		if update.DestinationCountries != nil {
			rec.Profile.DestinationCountries = lo.Uniq(update.DestinationCountries)
		}
		updated = rec.Profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SyncProfileFromFacts recomputes the profile slots from the verified
// fact log: destinations accumulate, scalar slots take the most recent
// fact of their type.
func (r *Repository) SyncProfileFromFacts(ctx context.Context, userID string) (*UserProfile, error) {
	var synced UserProfile
	err := r.mutate(ctx, userID, func(rec *userRecord) error {
		for _, fact := range rec.Facts {
			applyFactToProfile(&rec.Profile, fact)
		}
		synced = rec.Profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &synced, nil
}

// applyFactToProfile reflects a verified fact into the profile slots.
// Destination appends and de-duplicates; origin, nationality and
// timeline overwrite their scalar slot. Other types live only in the
// fact log.
func applyFactToProfile(p *UserProfile, fact Fact) {
	switch fact.FactType {
	case FactTypeDestination:
		if !lo.Contains(p.DestinationCountries, fact.FactValue) {
			p.DestinationCountries = append(p.DestinationCountries, fact.FactValue)
		}
	case FactTypeOrigin:
		value := fact.FactValue
		p.CurrentCountry = &value
	case FactTypeNationality:
		value := fact.FactValue
		p.Nationality = &value
	case FactTypeTimeline:
		value := fact.FactValue
		p.Timeline = &value
	}
}
