package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questlabs/quest-profile/pkg/helpers"
	"github.com/questlabs/quest-profile/pkg/profile"
)

func TestResolveDestination(t *testing.T) {
	t.Run("new destination for empty profile", func(t *testing.T) {
		res := Resolve(
			Candidate{Type: profile.FactTypeDestination, Value: "Slovenia", Confidence: 0.9},
			&profile.UserProfile{ID: "u1"},
			nil,
		)
		assert.True(t, res.IsNew)
		assert.Nil(t, res.OldValue)
	})

	t.Run("destination already on the list is known", func(t *testing.T) {
		res := Resolve(
			Candidate{Type: profile.FactTypeDestination, Value: "Slovenia", Confidence: 0.9},
			&profile.UserProfile{ID: "u1", DestinationCountries: []string{"Slovenia", "Spain"}},
			nil,
		)
		assert.False(t, res.IsNew)
	})

	t.Run("additional destination is new with joined old value", func(t *testing.T) {
		res := Resolve(
			Candidate{Type: profile.FactTypeDestination, Value: "Portugal", Confidence: 0.9},
			&profile.UserProfile{ID: "u1", DestinationCountries: []string{"Slovenia", "Spain"}},
			nil,
		)
		assert.True(t, res.IsNew)
		require.NotNil(t, res.OldValue)
		assert.Equal(t, "Slovenia, Spain", *res.OldValue)
	})
}

func TestResolveScalarSlots(t *testing.T) {
	userProfile := &profile.UserProfile{
		ID:             "u1",
		CurrentCountry: helpers.Ptr("UK"),
		Timeline:       helpers.Ptr("6 months"),
	}

	tests := []struct {
		name         string
		candidate    Candidate
		wantNew      bool
		wantOldValue *string
	}{
		{
			name:      "origin matches current country",
			candidate: Candidate{Type: profile.FactTypeOrigin, Value: "UK", Confidence: 0.9},
			wantNew:   false,
		},
		{
			name:         "origin differs from current country",
			candidate:    Candidate{Type: profile.FactTypeOrigin, Value: "Germany", Confidence: 0.9},
			wantNew:      true,
			wantOldValue: helpers.Ptr("UK"),
		},
		{
			name:         "timeline differs",
			candidate:    Candidate{Type: profile.FactTypeTimeline, Value: "next year", Confidence: 0.8},
			wantNew:      true,
			wantOldValue: helpers.Ptr("6 months"),
		},
		{
			name:      "nationality unset means new with no old value",
			candidate: Candidate{Type: profile.FactTypeNationality, Value: "British", Confidence: 0.9},
			wantNew:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(tt.candidate, userProfile, nil)
			assert.Equal(t, tt.wantNew, res.IsNew)
			if tt.wantOldValue == nil {
				assert.Nil(t, res.OldValue)
			} else {
				require.NotNil(t, res.OldValue)
				assert.Equal(t, *tt.wantOldValue, *res.OldValue)
			}
		})
	}
}

func TestResolveGenericTypesUseLatestFact(t *testing.T) {
	facts := []profile.Fact{
		{ID: "f1", FactType: profile.FactTypeBudget, FactValue: "1500", ExtractedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "f2", FactType: profile.FactTypeBudget, FactValue: "2000", ExtractedAt: time.Now().Add(-time.Hour)},
		{ID: "f3", FactType: profile.FactTypeProfession, FactValue: "software developer", ExtractedAt: time.Now()},
	}
	userProfile := &profile.UserProfile{ID: "u1"}

	t.Run("matches most recent fact of type", func(t *testing.T) {
		res := Resolve(Candidate{Type: profile.FactTypeBudget, Value: "2000", Confidence: 0.9}, userProfile, facts)
		assert.False(t, res.IsNew)
	})

	t.Run("superseded value counts as new again", func(t *testing.T) {
		res := Resolve(Candidate{Type: profile.FactTypeBudget, Value: "1500", Confidence: 0.9}, userProfile, facts)
		assert.True(t, res.IsNew)
		require.NotNil(t, res.OldValue)
		assert.Equal(t, "2000", *res.OldValue)
	})

	t.Run("type with no prior facts is new", func(t *testing.T) {
		res := Resolve(Candidate{Type: profile.FactTypeFamilyStatus, Value: "married", Confidence: 0.8}, userProfile, facts)
		assert.True(t, res.IsNew)
		assert.Nil(t, res.OldValue)
	})
}

func TestResolveNilProfile(t *testing.T) {
	res := Resolve(Candidate{Type: profile.FactTypeOrigin, Value: "UK", Confidence: 0.9}, nil, nil)
	assert.True(t, res.IsNew)
	assert.Nil(t, res.OldValue)
}
