package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mprlab/classboard/internal/classroom"
	"github.com/mprlab/classboard/internal/roles"
	"github.com/mprlab/classboard/pkg/tokencookie"
	"google.golang.org/api/googleapi"
)

type fixedClock struct {
	now time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.now
}

type fakeProfiles struct {
	profile classroom.UserProfile
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (fake *fakeProfiles) FetchProfile(_ context.Context, _ string) (classroom.UserProfile, error) {
	fake.calls.Add(1)
	if fake.started != nil {
		select {
		case fake.started <- struct{}{}:
		default:
		}
	}
	if fake.release != nil {
		<-fake.release
	}
	return fake.profile, fake.err
}

type fakeMemberships struct {
	memberships []roles.Membership
	err         error
	calls       atomic.Int32
}

func (fake *fakeMemberships) FetchMemberships(_ context.Context, _ string) ([]roles.Membership, error) {
	fake.calls.Add(1)
	return fake.memberships, fake.err
}

func testProfile() classroom.UserProfile {
	return classroom.UserProfile{
		ID:           "user-7",
		EmailAddress: "jordan@school.edu",
		Name:         classroom.Name{GivenName: "Jordan", FamilyName: "Lee", FullName: "Jordan Lee"},
		PhotoURL:     "https://example.com/jordan.png",
	}
}

func mintIDToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-7",
		"email": "jordan@school.edu",
		"exp":   expiry.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestResolveWithoutAccessToken(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{}
	memberships := &fakeMemberships{}
	resolver := NewResolver(profiles, memberships)

	snapshot := resolver.Resolve(context.Background(), tokencookie.Credentials{})
	if snapshot.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %q", snapshot.State)
	}
	if profiles.calls.Load() != 0 || memberships.calls.Load() != 0 {
		t.Fatalf("expected no network calls without a token")
	}
}

func TestResolveSkipsNetworkForStaleCredentials(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	profiles := &fakeProfiles{}
	resolver := NewResolver(profiles, &fakeMemberships{}, WithClock(fixedClock{now: now}))

	credentials := tokencookie.Credentials{
		AccessToken: "expired-access",
		IDToken:     mintIDToken(t, now.Add(-time.Hour)),
	}
	snapshot := resolver.Resolve(context.Background(), credentials)
	if snapshot.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated for stale credentials, got %q", snapshot.State)
	}
	if profiles.calls.Load() != 0 {
		t.Fatalf("expected the profile fetch to be skipped")
	}
}

func TestResolveAuthenticatedTeacher(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{profile: testProfile()}
	memberships := &fakeMemberships{memberships: []roles.Membership{
		{CourseID: "c1", OwnerID: "user-7"},
	}}
	resolver := NewResolver(profiles, memberships)

	snapshot := resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "valid"})
	if snapshot.State != StateAuthenticated {
		t.Fatalf("expected authenticated, got %q (%s)", snapshot.State, snapshot.Message)
	}
	if snapshot.User == nil {
		t.Fatalf("authenticated snapshot must carry a user")
	}
	if snapshot.User.Role != roles.RoleTeacher {
		t.Fatalf("expected teacher role, got %q", snapshot.User.Role)
	}
	if snapshot.User.Email != "jordan@school.edu" || snapshot.User.Name != "Jordan Lee" {
		t.Fatalf("unexpected identity: %+v", snapshot.User)
	}
	if len(snapshot.User.Permissions) == 0 {
		t.Fatalf("expected role permissions to be attached")
	}
}

func TestResolveCoordinatorByEmail(t *testing.T) {
	t.Parallel()

	profile := testProfile()
	profile.EmailAddress = "coordinator@school.edu"
	resolver := NewResolver(&fakeProfiles{profile: profile}, &fakeMemberships{})

	snapshot := resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "valid"})
	if snapshot.State != StateAuthenticated || snapshot.User.Role != roles.RoleCoordinator {
		t.Fatalf("expected coordinator, got %+v", snapshot)
	}
}

func TestResolveToleratesMembershipFailure(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{profile: testProfile()}
	memberships := &fakeMemberships{err: errors.New("courses unavailable")}
	resolver := NewResolver(profiles, memberships)

	snapshot := resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "valid"})
	if snapshot.State != StateAuthenticated {
		t.Fatalf("membership failure must not sign the user out, got %q", snapshot.State)
	}
	if snapshot.User.Role != roles.RoleStudent {
		t.Fatalf("expected student fallback, got %q", snapshot.User.Role)
	}
}

func TestResolveForbiddenMembershipsSignalsNoAccess(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{profile: testProfile()}
	denial := fmt.Errorf("courses: %w", &googleapi.Error{Code: http.StatusForbidden})
	resolver := NewResolver(profiles, &fakeMemberships{err: denial})

	snapshot := resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "valid"})
	if snapshot.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %q", snapshot.State)
	}
	if snapshot.Message != CodeNoClassroomAccess {
		t.Fatalf("expected %q marker, got %q", CodeNoClassroomAccess, snapshot.Message)
	}
}

func TestResolveUnauthorizedProfileIsSignedOut(t *testing.T) {
	t.Parallel()

	rejection := fmt.Errorf("userinfo: %w", &googleapi.Error{Code: http.StatusUnauthorized})
	resolver := NewResolver(&fakeProfiles{err: rejection}, &fakeMemberships{})

	snapshot := resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "revoked"})
	if snapshot.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated for 401, got %q", snapshot.State)
	}
}

func TestResolveProfileTimeoutIsSignedOut(t *testing.T) {
	t.Parallel()

	timeout := fmt.Errorf("userinfo: %w", context.DeadlineExceeded)
	resolver := NewResolver(&fakeProfiles{err: timeout}, &fakeMemberships{})

	snapshot := resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "slow"})
	if snapshot.State != StateUnauthenticated {
		t.Fatalf("expected unauthenticated for timeout, got %q", snapshot.State)
	}
}

func TestResolveUnexpectedProfileErrorIsError(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(&fakeProfiles{err: errors.New("connection reset")}, &fakeMemberships{})

	snapshot := resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "valid"})
	if snapshot.State != StateError {
		t.Fatalf("expected error state, got %q", snapshot.State)
	}
	if snapshot.Message == "" {
		t.Fatalf("error snapshot must carry a message")
	}
	if snapshot.User != nil {
		t.Fatalf("error snapshot must not carry a user")
	}
}

func TestResolveSharesOneRoundTrip(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{
		profile: testProfile(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	memberships := &fakeMemberships{}
	resolver := NewResolver(profiles, memberships)

	const callers = 6
	snapshots := make([]Snapshot, callers)
	var group sync.WaitGroup

	group.Add(1)
	go func() {
		defer group.Done()
		snapshots[0] = resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "valid"})
	}()
	<-profiles.started

	for index := 1; index < callers; index++ {
		group.Add(1)
		go func(index int) {
			defer group.Done()
			snapshots[index] = resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "valid"})
		}(index)
	}
	// Let the joiners reach the in-flight wait before the leader finishes.
	time.Sleep(50 * time.Millisecond)
	close(profiles.release)
	group.Wait()

	if calls := profiles.calls.Load(); calls != 1 {
		t.Fatalf("expected one profile fetch across %d callers, got %d", callers, calls)
	}
	for index, snapshot := range snapshots {
		if snapshot.State != StateAuthenticated {
			t.Fatalf("caller %d: expected authenticated, got %q", index, snapshot.State)
		}
	}
}

func TestResolveJoinerHonorsContext(t *testing.T) {
	t.Parallel()

	profiles := &fakeProfiles{
		profile: testProfile(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	resolver := NewResolver(profiles, &fakeMemberships{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		resolver.Resolve(context.Background(), tokencookie.Credentials{AccessToken: "valid"})
	}()
	<-profiles.started

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	snapshot := resolver.Resolve(cancelled, tokencookie.Credentials{AccessToken: "valid"})
	if snapshot.State != StateLoading {
		t.Fatalf("expected loading for a cancelled joiner, got %q", snapshot.State)
	}

	close(profiles.release)
	<-done
}

func TestMembershipsFromCourses(t *testing.T) {
	t.Parallel()

	courses := []classroom.Course{
		{
			ID:                "c1",
			CourseState:       classroom.CourseStateActive,
			OwnerID:           "owner-1",
			TeacherFolder:     true,
			TeacherGroupEmail: "math-teachers@school.edu",
			TeacherAccess:     true,
			Teachers: []classroom.Teacher{
				{UserID: "t1", Profile: classroom.RosterProfile{EmailAddress: "teacher@school.edu"}},
			},
		},
		{ID: "c2", CourseState: classroom.CourseStateActive},
	}

	memberships := MembershipsFromCourses(courses)
	if len(memberships) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(memberships))
	}
	first := memberships[0]
	if first.CourseID != "c1" || first.OwnerID != "owner-1" || !first.TeacherFolder {
		t.Fatalf("unexpected mapping: %+v", first)
	}
	if first.UserRole != string(roles.RoleTeacher) {
		t.Fatalf("expected probe hint to become a teacher userRole, got %q", first.UserRole)
	}
	if len(first.Teachers) != 1 || first.Teachers[0].Email != "teacher@school.edu" {
		t.Fatalf("unexpected roster mapping: %+v", first.Teachers)
	}
	if memberships[1].UserRole != "" {
		t.Fatalf("course without probe access must not carry a role hint")
	}
}
