package session

import (
	"context"

	"github.com/mprlab/classboard/internal/classroom"
	"github.com/mprlab/classboard/internal/roles"
	"go.uber.org/zap"
)

// ClassroomFetcher implements ProfileFetcher and MembershipFetcher over the
// Classroom API, building a fresh request-scoped client per call.
type ClassroomFetcher struct {
	logger        *zap.Logger
	clientOptions []classroom.Option
}

// NewClassroomFetcher builds the production fetcher. The client options are
// forwarded to every client it constructs.
func NewClassroomFetcher(logger *zap.Logger, clientOptions ...classroom.Option) *ClassroomFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassroomFetcher{logger: logger, clientOptions: clientOptions}
}

// FetchProfile retrieves the caller's identity from the userinfo endpoint.
func (fetcher *ClassroomFetcher) FetchProfile(ctx context.Context, accessToken string) (classroom.UserProfile, error) {
	client, err := fetcher.newClient(ctx, accessToken)
	if err != nil {
		return classroom.UserProfile{}, err
	}
	return client.UserInfo(ctx)
}

// FetchMemberships lists the caller's active courses and reduces each one to
// its role-derivation signals.
func (fetcher *ClassroomFetcher) FetchMemberships(ctx context.Context, accessToken string) ([]roles.Membership, error) {
	client, err := fetcher.newClient(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	courses, coursesErr := client.ListCourses(ctx)
	if coursesErr != nil {
		return nil, coursesErr
	}
	return MembershipsFromCourses(courses), nil
}

func (fetcher *ClassroomFetcher) newClient(ctx context.Context, accessToken string) (*classroom.Client, error) {
	options := append([]classroom.Option{classroom.WithLogger(fetcher.logger)}, fetcher.clientOptions...)
	return classroom.NewClient(ctx, accessToken, options...)
}

// MembershipsFromCourses projects courses onto the signal set the role
// engine consumes. The teacher probe result becomes a userRole hint.
func MembershipsFromCourses(courses []classroom.Course) []roles.Membership {
	memberships := make([]roles.Membership, 0, len(courses))
	for _, course := range courses {
		membership := roles.Membership{
			CourseID:          course.ID,
			CourseState:       course.CourseState,
			OwnerID:           course.OwnerID,
			TeacherFolder:     course.TeacherFolder,
			TeacherGroupEmail: course.TeacherGroupEmail,
		}
		if course.TeacherAccess {
			membership.UserRole = string(roles.RoleTeacher)
		}
		for _, teacher := range course.Teachers {
			membership.Teachers = append(membership.Teachers, roles.TeacherRosterEntry{
				UserID: teacher.UserID,
				Email:  teacher.Profile.EmailAddress,
			})
		}
		memberships = append(memberships, membership)
	}
	return memberships
}
