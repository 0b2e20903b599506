// Package device recognizes returning devices by their fingerprint and manages the
// bounded set of trusted device profiles kept for each user.
//
// # Overview
//
// The device package provides:
//   - ProfileStore: per-user profile collections with a size bound and LRU eviction
//   - Matcher: routes a candidate fingerprint to "no device yet" or "compare against these"
//   - Service: identity precondition checks in front of both
//   - ProfileRepository implementations for PostgreSQL, a JSON file, memory, and a no-op
//
// # Basic Usage
//
//	repo, err := device.NewProfileRepository("postgres", device.RepositoryConfig{DB: pool})
//	store := device.NewProfileStore(repo)
//	service := device.NewService(store, resolver,
//		device.WithMaxProfilesAllowed(5),
//	)
//
//	key := device.UserKey{Realm: "/", Username: "alice"}
//	result, err := service.MatchCandidate(ctx, key, device.Candidate{
//		Attributes: attrs,
//		ClientIP:   clientIP,
//	})
//	switch result.Outcome {
//	case device.OutcomeNoCandidateSupplied:
//		// Collect a fingerprint first
//	case device.OutcomeNoRegisteredDevice:
//		// First device for this user
//	case device.OutcomeHasRegisteredDevice:
//		// Compare against result.Profiles
//	}
//
//	saved, err := service.SaveCandidate(ctx, key, candidate, "Work Laptop", 0)
//	if saved.Status == device.SaveStatusRejectedEmpty {
//		// Nothing was stored
//	}
//
// # Eviction
//
// When a save would push a collection past its bound, the profile with the oldest
// LastSelectedDate is removed first. Saving a fingerprint identical to a stored one
// refreshes that profile instead of adding a new one. TouchProfile marks a profile as used.
//
// # Concurrency
//
// Writes for one (realm, username) are serialized by the store and applied through
// ProfileRepository.UpdateProfiles, which each backend makes atomic per key. The
// PostgreSQL backend takes a transaction-scoped advisory lock so that several service
// instances sharing a database are serialized as well.
package device
