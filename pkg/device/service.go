package device

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-deviceid/pkg/attributes"
	idmerrors "github.com/tendant/simple-deviceid/pkg/errors"
	"github.com/tendant/simple-deviceid/pkg/identity"
)

// Candidate is a fingerprint submitted by a client
type Candidate struct {
	Attributes *attributes.Map
	ClientIP   string // Address seen by the server, added as clientDeviceIpAddress
}

// SaveStatus describes what happened to a candidate on the save path
type SaveStatus string

const (
	SaveStatusSaved             SaveStatus = "saved"
	SaveStatusRejectedEmpty     SaveStatus = "rejected_empty"
	SaveStatusRejectedMalformed SaveStatus = "rejected_malformed"
)

// SaveResult is the outcome of SaveCandidate. Profile is set only when Status is saved.
type SaveResult struct {
	Status  SaveStatus `json:"status"`
	Profile *Profile   `json:"profile,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// Service is the entry point for the orchestrator: it checks the identity, then routes to
// the Matcher or the ProfileStore.
type Service struct {
	store              *ProfileStore
	matcher            *Matcher
	resolver           identity.Resolver
	maxProfilesAllowed int
	autoStore          bool
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithMaxProfilesAllowed sets the bound used when a caller passes no limit
func WithMaxProfilesAllowed(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxProfilesAllowed = n
		}
	}
}

// WithAutoStore makes unnamed candidates get stored without asking the user for a name
func WithAutoStore(enabled bool) ServiceOption {
	return func(s *Service) {
		s.autoStore = enabled
	}
}

// NewService creates a service over store and resolver
func NewService(store *ProfileStore, resolver identity.Resolver, opts ...ServiceOption) *Service {
	s := &Service{
		store:              store,
		matcher:            NewMatcher(store),
		resolver:           resolver,
		maxProfilesAllowed: DefaultMaxProfilesAllowed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxProfilesAllowed returns the default bound on profiles per user
func (s *Service) MaxProfilesAllowed() int {
	return s.maxProfilesAllowed
}

// AutoStoreProfiles reports whether the orchestrator should save without prompting for a name
func (s *Service) AutoStoreProfiles() bool {
	return s.autoStore
}

// MatchCandidate resolves the identity and reports whether the user has trusted devices
func (s *Service) MatchCandidate(ctx context.Context, key UserKey, candidate Candidate) (MatchResult, error) {
	if err := s.checkIdentity(ctx, key); err != nil {
		return MatchResult{}, err
	}

	result, err := s.matcher.Match(ctx, key, WithClientIP(candidate.Attributes, candidate.ClientIP))
	if err != nil {
		return MatchResult{}, err
	}

	slog.Debug("Device match evaluated", "realm", key.Realm, "username", key.Username, "outcome", result.Outcome, "count", len(result.Profiles))
	return result, nil
}

// SaveCandidate stores the candidate for the user. Empty and malformed candidates are
// reported through SaveResult.Status rather than as errors. maxAllowed <= 0 uses the
// configured default.
func (s *Service) SaveCandidate(ctx context.Context, key UserKey, candidate Candidate, name string, maxAllowed int) (SaveResult, error) {
	if err := s.checkIdentity(ctx, key); err != nil {
		return SaveResult{}, err
	}
	if maxAllowed <= 0 {
		maxAllowed = s.maxProfilesAllowed
	}

	attrs := WithClientIP(candidate.Attributes, candidate.ClientIP)
	profile, err := s.store.SaveNamedDevicePrint(ctx, key, name, attrs, maxAllowed)
	if err != nil {
		switch idmerrors.GetCode(err) {
		case idmerrors.ErrCodeEmptyProfile:
			slog.Info("Empty device profile rejected", "realm", key.Realm, "username", key.Username)
			return SaveResult{Status: SaveStatusRejectedEmpty, Reason: err.Error()}, nil
		case idmerrors.ErrCodeMalformedAttributes:
			slog.Info("Malformed device profile rejected", "realm", key.Realm, "username", key.Username)
			return SaveResult{Status: SaveStatusRejectedMalformed, Reason: err.Error()}, nil
		}
		return SaveResult{}, err
	}

	return SaveResult{Status: SaveStatusSaved, Profile: &profile}, nil
}

// RejectMalformed reports a candidate whose document could not be parsed. The identity is
// checked first so that unknown and inactive users get the same errors as SaveCandidate.
func (s *Service) RejectMalformed(ctx context.Context, key UserKey, cause error) (SaveResult, error) {
	if err := s.checkIdentity(ctx, key); err != nil {
		return SaveResult{}, err
	}
	slog.Info("Malformed device profile rejected", "realm", key.Realm, "username", key.Username)
	return SaveResult{Status: SaveStatusRejectedMalformed, Reason: cause.Error()}, nil
}

// ListProfiles returns the user's stored profiles
func (s *Service) ListProfiles(ctx context.Context, key UserKey) ([]Profile, error) {
	if err := s.checkIdentity(ctx, key); err != nil {
		return nil, err
	}
	return s.store.LoadProfiles(ctx, key)
}

// TouchProfile records that the user picked a stored profile
func (s *Service) TouchProfile(ctx context.Context, key UserKey, id string) (Profile, error) {
	if err := s.checkIdentity(ctx, key); err != nil {
		return Profile{}, err
	}
	return s.store.TouchProfile(ctx, key, id)
}

// RenameProfile changes a stored profile's display name
func (s *Service) RenameProfile(ctx context.Context, key UserKey, id, name string) (Profile, error) {
	if err := s.checkIdentity(ctx, key); err != nil {
		return Profile{}, err
	}
	return s.store.RenameProfile(ctx, key, id, name)
}

// DeleteProfile removes a stored profile
func (s *Service) DeleteProfile(ctx context.Context, key UserKey, id string) error {
	if err := s.checkIdentity(ctx, key); err != nil {
		return err
	}
	return s.store.DeleteProfile(ctx, key, id)
}

// checkIdentity turns lookup failures into IdentityNotFound and inactive accounts into
// IdentityInactive, keeping both apart from storage errors.
func (s *Service) checkIdentity(ctx context.Context, key UserKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	ident, err := s.resolver.ResolveActiveIdentity(ctx, key.Username, key.Realm)
	if err != nil {
		if idmerrors.Is(err, context.Canceled) || idmerrors.Is(err, context.DeadlineExceeded) {
			return err
		}
		switch idmerrors.GetCode(err) {
		case idmerrors.ErrCodeIdentityNotFound, idmerrors.ErrCodeIdentityInactive:
			return err
		}
		slog.Warn("Identity lookup failed", "realm", key.Realm, "username", key.Username, "error", err)
		return idmerrors.Wrapf(err, idmerrors.ErrCodeIdentityNotFound, "identity not found: %s", key.Username).
			WithDetail("username", key.Username).
			WithDetail("realm", key.Realm)
	}
	if !ident.Active {
		return idmerrors.IdentityInactive(key.Username, key.Realm)
	}
	return nil
}
