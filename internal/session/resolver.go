// Package session turns the browser's credential cookies into a resolved
// dashboard user. Resolution runs at most once at a time per resolver;
// concurrent callers join the in-flight round trip instead of issuing
// their own.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/mprlab/classboard/internal/classroom"
	"github.com/mprlab/classboard/internal/roles"
	"github.com/mprlab/classboard/pkg/tokencookie"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// State is the explicit lifecycle of a session resolution.
type State string

const (
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
	StateError           State = "error"
)

// User is the resolved identity attached to an authenticated session.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	PhotoURL    string     `json:"photoUrl,omitempty"`
	Role        roles.Role `json:"role"`
	Permissions []string   `json:"permissions"`
}

// Snapshot is the outcome of one resolution. User is non-nil exactly when
// State is StateAuthenticated. Message carries the failure detail for
// StateError, or CodeNoClassroomAccess on a signed-out denial.
type Snapshot struct {
	State   State  `json:"state"`
	User    *User  `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

// ProfileFetcher retrieves the caller's identity with their bearer token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (classroom.UserProfile, error)
}

// MembershipFetcher retrieves the caller's course memberships. Failures
// here are tolerated; role derivation falls back to profile signals.
type MembershipFetcher interface {
	FetchMemberships(ctx context.Context, accessToken string) ([]roles.Membership, error)
}

// Timeouts bound the network phases of a resolution.
type Timeouts struct {
	Profile    time.Duration
	Membership time.Duration
	Overall    time.Duration
}

func (timeouts Timeouts) withDefaults() Timeouts {
	if timeouts.Profile <= 0 {
		timeouts.Profile = 10 * time.Second
	}
	if timeouts.Membership <= 0 {
		timeouts.Membership = 5 * time.Second
	}
	if timeouts.Overall <= 0 {
		timeouts.Overall = 15 * time.Second
	}
	return timeouts
}

const messageResolveFailed = "Session could not be resolved"

// CodeNoClassroomAccess marks a signed-out snapshot caused by the provider
// denying Classroom reads outright rather than by a bad credential.
const CodeNoClassroomAccess = "no_classroom_access"

// Resolver coordinates session resolution for one server process. In-flight
// resolutions are keyed by credential, so concurrent requests from the same
// browser session share one round trip while distinct users stay isolated.
type Resolver struct {
	profiles    ProfileFetcher
	memberships MembershipFetcher
	logger      *zap.Logger
	clock       tokencookie.Clock
	timeouts    Timeouts

	mutex    sync.Mutex
	inflight map[string]*resolution
}

type resolution struct {
	done     chan struct{}
	snapshot Snapshot
}

// ResolverOption customizes resolver construction.
type ResolverOption func(*Resolver)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(resolver *Resolver) { resolver.logger = logger }
}

// WithClock substitutes the clock used for the stale-credential fast path.
func WithClock(clock tokencookie.Clock) ResolverOption {
	return func(resolver *Resolver) { resolver.clock = clock }
}

// WithTimeouts overrides the phase timeouts.
func WithTimeouts(timeouts Timeouts) ResolverOption {
	return func(resolver *Resolver) { resolver.timeouts = timeouts }
}

// NewResolver builds a resolver over the supplied fetchers.
func NewResolver(profiles ProfileFetcher, memberships MembershipFetcher, opts ...ResolverOption) *Resolver {
	resolver := &Resolver{
		profiles:    profiles,
		memberships: memberships,
		logger:      zap.NewNop(),
		clock:       tokencookie.SystemClock(),
		inflight:    make(map[string]*resolution),
	}
	for _, opt := range opts {
		opt(resolver)
	}
	resolver.timeouts = resolver.timeouts.withDefaults()
	return resolver
}

// Resolve maps the credentials to a snapshot. When another resolution is
// already running, the caller waits for its result instead of starting a
// second round trip; a caller whose context expires first gets a loading
// snapshot back.
func (resolver *Resolver) Resolve(ctx context.Context, credentials tokencookie.Credentials) Snapshot {
	key := credentials.AccessToken

	resolver.mutex.Lock()
	if current, running := resolver.inflight[key]; running {
		resolver.mutex.Unlock()
		select {
		case <-current.done:
			return current.snapshot
		case <-ctx.Done():
			return Snapshot{State: StateLoading}
		}
	}
	current := &resolution{done: make(chan struct{})}
	resolver.inflight[key] = current
	resolver.mutex.Unlock()

	current.snapshot = resolver.resolve(ctx, credentials)

	resolver.mutex.Lock()
	delete(resolver.inflight, key)
	resolver.mutex.Unlock()
	close(current.done)
	return current.snapshot
}

func (resolver *Resolver) resolve(ctx context.Context, credentials tokencookie.Credentials) Snapshot {
	if !credentials.HasAccessToken() {
		return Snapshot{State: StateUnauthenticated}
	}
	if credentials.StaleWithoutRefresh(resolver.clock) {
		// The id token has expired and nothing can renew it; a profile
		// fetch is guaranteed to 401, so skip the round trip.
		resolver.logger.Debug("skipping resolution for stale credentials",
			zap.String("code", "session.resolve.stale"))
		return Snapshot{State: StateUnauthenticated}
	}

	overallCtx, cancelOverall := context.WithTimeout(ctx, resolver.timeouts.Overall)
	defer cancelOverall()

	profileCtx, cancelProfile := context.WithTimeout(overallCtx, resolver.timeouts.Profile)
	profile, profileErr := resolver.profiles.FetchProfile(profileCtx, credentials.AccessToken)
	cancelProfile()
	if profileErr != nil {
		if isAuthRejection(profileErr) || errors.Is(profileErr, context.DeadlineExceeded) {
			resolver.logger.Info("profile fetch rejected, treating session as signed out",
				zap.String("code", "session.resolve.unauthenticated"),
				zap.Error(profileErr))
			return Snapshot{State: StateUnauthenticated}
		}
		resolver.logger.Error("profile fetch failed",
			zap.String("code", "session.resolve.profile"),
			zap.Error(profileErr))
		return Snapshot{State: StateError, Message: messageResolveFailed}
	}

	membershipCtx, cancelMembership := context.WithTimeout(overallCtx, resolver.timeouts.Membership)
	memberships, membershipErr := resolver.memberships.FetchMemberships(membershipCtx, credentials.AccessToken)
	cancelMembership()
	if membershipErr != nil {
		if isForbidden(membershipErr) {
			// The account itself is fine but Classroom is off limits; the
			// dashboard has nothing to show such a session.
			resolver.logger.Info("classroom reads denied for this account",
				zap.String("code", "session.resolve.no_classroom_access"),
				zap.Error(membershipErr))
			return Snapshot{State: StateUnauthenticated, Message: CodeNoClassroomAccess}
		}
		// Otherwise membership data only sharpens role derivation; losing
		// it must never sign the user out.
		resolver.logger.Warn("membership fetch failed, deriving role without it",
			zap.String("code", "session.resolve.memberships"),
			zap.Error(membershipErr))
		memberships = nil
	}

	role := roles.Derive(profile.EmailAddress, &roles.Profile{
		ID:    profile.ID,
		Email: profile.EmailAddress,
	}, memberships)

	return Snapshot{
		State: StateAuthenticated,
		User: &User{
			ID:          profile.ID,
			Email:       profile.EmailAddress,
			Name:        profile.Name.FullName,
			PhotoURL:    profile.PhotoURL,
			Role:        role,
			Permissions: roles.Permissions(role),
		},
	}
}

// isAuthRejection reports whether the provider refused the credential
// itself, as opposed to failing for an unrelated reason.
func isAuthRejection(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
}

func isForbidden(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}
