package extraction

import (
	"strings"

	"github.com/samber/lo"

	"github.com/questlabs/quest-profile/pkg/profile"
)

// Resolution says whether a candidate carries new information and what
// the profile currently holds for that slot.
type Resolution struct {
	IsNew    bool
	OldValue *string
}

// Resolve compares a candidate against live profile state.
//
// destination is multi-valued: new iff the exact value is absent from
// the destination list. origin, timeline and nationality are scalar
// slots. Every other type is checked against the most recent verified
// fact of that type. A nil profile (brand-new user) makes everything new.
func Resolve(candidate Candidate, userProfile *profile.UserProfile, facts []profile.Fact) Resolution {
	switch candidate.Type {
	case profile.FactTypeDestination:
		if userProfile == nil || len(userProfile.DestinationCountries) == 0 {
			return Resolution{IsNew: true}
		}
		if lo.Contains(userProfile.DestinationCountries, candidate.Value) {
			return Resolution{IsNew: false}
		}
		joined := strings.Join(userProfile.DestinationCountries, ", ")
		return Resolution{IsNew: true, OldValue: &joined}

	case profile.FactTypeOrigin:
		return resolveScalar(candidate.Value, scalarValue(userProfile, func(p *profile.UserProfile) *string { return p.CurrentCountry }))

	case profile.FactTypeTimeline:
		return resolveScalar(candidate.Value, scalarValue(userProfile, func(p *profile.UserProfile) *string { return p.Timeline }))

	case profile.FactTypeNationality:
		return resolveScalar(candidate.Value, scalarValue(userProfile, func(p *profile.UserProfile) *string { return p.Nationality }))

	default:
		latest := latestFactOfType(facts, candidate.Type)
		if latest == nil {
			return Resolution{IsNew: true}
		}
		if latest.FactValue == candidate.Value {
			return Resolution{IsNew: false}
		}
		old := latest.FactValue
		return Resolution{IsNew: true, OldValue: &old}
	}
}

func scalarValue(userProfile *profile.UserProfile, field func(*profile.UserProfile) *string) *string {
	if userProfile == nil {
		return nil
	}
	return field(userProfile)
}

func resolveScalar(candidateValue string, current *string) Resolution {
	if current == nil {
		return Resolution{IsNew: true}
	}
	if *current == candidateValue {
		return Resolution{IsNew: false}
	}
	return Resolution{IsNew: true, OldValue: current}
}

// latestFactOfType returns the newest fact of the given type; the log is
// append-only so the last match wins.
func latestFactOfType(facts []profile.Fact, factType string) *profile.Fact {
	for i := len(facts) - 1; i >= 0; i-- {
		if facts[i].FactType == factType {
			return &facts[i]
		}
	}
	return nil
}
