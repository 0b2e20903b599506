package device

import (
	"context"

	"github.com/tendant/simple-deviceid/pkg/attributes"
)

// Outcome is the routing decision returned by Matcher
type Outcome string

const (
	OutcomeNoCandidateSupplied Outcome = "no_candidate_supplied" // Caller still has to collect a fingerprint
	OutcomeNoRegisteredDevice  Outcome = "no_registered_device"
	OutcomeHasRegisteredDevice Outcome = "has_registered_device"
)

// MatchResult carries the outcome and, for OutcomeHasRegisteredDevice, the full collection
type MatchResult struct {
	Outcome  Outcome   `json:"outcome"`
	Profiles []Profile `json:"profiles"`
	// Identical is the stored profile whose attributes equal the candidate's, if any
	Identical *Profile `json:"identical,omitempty"`
}

// ProfileReader is the read side of ProfileStore
type ProfileReader interface {
	LoadProfiles(ctx context.Context, key UserKey) ([]Profile, error)
}

// Matcher decides whether a user has trusted devices to compare a candidate against.
// It does not score similarity; the caller compares against the returned collection.
type Matcher struct {
	reader ProfileReader
}

// NewMatcher creates a matcher reading through reader
func NewMatcher(reader ProfileReader) *Matcher {
	return &Matcher{reader: reader}
}

// Match is read-only. An empty candidate short-circuits without touching storage.
func (m *Matcher) Match(ctx context.Context, key UserKey, candidate *attributes.Map) (MatchResult, error) {
	if candidate.IsEmpty() {
		return MatchResult{Outcome: OutcomeNoCandidateSupplied, Profiles: []Profile{}}, nil
	}

	profiles, err := m.reader.LoadProfiles(ctx, key)
	if err != nil {
		return MatchResult{}, err
	}
	if len(profiles) == 0 {
		return MatchResult{Outcome: OutcomeNoRegisteredDevice, Profiles: []Profile{}}, nil
	}

	result := MatchResult{Outcome: OutcomeHasRegisteredDevice, Profiles: profiles}
	digest := attributes.Digest(candidate)
	for i := range profiles {
		if attributes.Digest(profiles[i].Attributes) == digest {
			identical := profiles[i].Clone()
			result.Identical = &identical
			break
		}
	}
	return result, nil
}
