package classroom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	classroomapi "google.golang.org/api/classroom/v1"
	"google.golang.org/api/googleapi"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Sentinel errors for primary-call failures.
var (
	ErrMissingAccessToken = errors.New("classroom.client.missing_access_token")
	ErrCoursesList        = errors.New("classroom.courses.list_failed")
	ErrStudentsList       = errors.New("classroom.students.list_failed")
	ErrTeachersList       = errors.New("classroom.teachers.list_failed")
	ErrUserInfo           = errors.New("classroom.userinfo.failed")
	ErrNoAccess           = errors.New("classroom.access.denied")
)

const defaultPageSize = 100

// Client is a request-scoped, immutable reader over the Classroom API. It is
// constructed fresh per call with the caller's token; it is never shared
// across requests.
type Client struct {
	classroomService *classroomapi.Service
	userinfoService  *oauth2api.Service
	logger           *zap.Logger
	pageSize         int64
}

// Option customizes client construction.
type Option func(*clientOptions)

type clientOptions struct {
	logger     *zap.Logger
	httpClient *http.Client
	endpoint   string
	pageSize   int64
}

// WithLogger attaches a logger for degradation warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(options *clientOptions) { options.logger = logger }
}

// WithHTTPClient replaces the transport; used by tests together with
// WithEndpoint to point the client at a fake server.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(options *clientOptions) { options.httpClient = httpClient }
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(options *clientOptions) { options.endpoint = endpoint }
}

// WithPageSize overrides the list page size.
func WithPageSize(pageSize int64) Option {
	return func(options *clientOptions) { options.pageSize = pageSize }
}

// NewClient builds a reader scoped to the supplied bearer token.
func NewClient(ctx context.Context, accessToken string, opts ...Option) (*Client, error) {
	options := clientOptions{logger: zap.NewNop(), pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(&options)
	}

	var apiOptions []option.ClientOption
	if options.httpClient != nil {
		apiOptions = append(apiOptions, option.WithHTTPClient(options.httpClient))
	} else {
		if accessToken == "" {
			return nil, ErrMissingAccessToken
		}
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
		apiOptions = append(apiOptions, option.WithTokenSource(tokenSource))
	}
	if options.endpoint != "" {
		apiOptions = append(apiOptions, option.WithEndpoint(options.endpoint))
	}

	classroomService, classroomErr := classroomapi.NewService(ctx, apiOptions...)
	if classroomErr != nil {
		return nil, fmt.Errorf("classroom.client.init: %w", classroomErr)
	}
	userinfoService, userinfoErr := oauth2api.NewService(ctx, apiOptions...)
	if userinfoErr != nil {
		return nil, fmt.Errorf("classroom.client.init: %w", userinfoErr)
	}

	return &Client{
		classroomService: classroomService,
		userinfoService:  userinfoService,
		logger:           options.logger,
		pageSize:         options.pageSize,
	}, nil
}

// ProbeAccess performs the minimal list call used to verify the account can
// reach Classroom at all. Never retried.
func (client *Client) ProbeAccess(ctx context.Context) error {
	_, err := client.classroomService.Courses.List().PageSize(1).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoAccess, err)
	}
	return nil
}

// UserInfo fetches the caller's identity from the userinfo endpoint.
func (client *Client) UserInfo(ctx context.Context) (UserProfile, error) {
	info, err := client.userinfoService.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return UserProfile{}, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	verified := false
	if info.VerifiedEmail != nil {
		verified = *info.VerifiedEmail
	}
	fullName := info.Name
	if fullName == "" {
		fullName = info.Email
	}
	return UserProfile{
		ID:           info.Id,
		EmailAddress: info.Email,
		Name: Name{
			GivenName:  info.GivenName,
			FamilyName: info.FamilyName,
			FullName:   fullName,
		},
		PhotoURL:      info.Picture,
		VerifiedEmail: verified,
		Locale:        info.Locale,
	}, nil
}

// ListCourses returns active courses enriched with the teacher probe. A
// probe failure is no signal, not an error; a courses failure propagates.
func (client *Client) ListCourses(ctx context.Context) ([]Course, error) {
	response, err := client.classroomService.Courses.List().
		CourseStates(CourseStateActive).
		PageSize(client.pageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCoursesList, err)
	}

	courses := make([]Course, 0, len(response.Courses))
	for _, raw := range response.Courses {
		course := mapCourse(raw)
		teachers, probeErr := client.ListTeachers(ctx, course.ID)
		if probeErr != nil {
			client.logger.Debug("teacher probe failed",
				zap.String("code", "classroom.courses.teacher_probe"),
				zap.String("course_id", course.ID),
				zap.Error(probeErr))
		} else if len(teachers) > 0 {
			course.TeacherAccess = true
			course.Teachers = teachers
		}
		courses = append(courses, course)
	}
	return courses, nil
}

// ListStudents returns the student roster of a course.
func (client *Client) ListStudents(ctx context.Context, courseID string) ([]Student, error) {
	response, err := client.classroomService.Courses.Students.List(courseID).
		PageSize(client.pageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStudentsList, err)
	}
	students := make([]Student, 0, len(response.Students))
	for _, raw := range response.Students {
		students = append(students, Student{
			CourseID: raw.CourseId,
			UserID:   raw.UserId,
			Profile:  mapRosterProfile(raw.Profile),
		})
	}
	return students, nil
}

// ListTeachers returns the teacher roster of a course.
func (client *Client) ListTeachers(ctx context.Context, courseID string) ([]Teacher, error) {
	response, err := client.classroomService.Courses.Teachers.List(courseID).
		PageSize(client.pageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTeachersList, err)
	}
	teachers := make([]Teacher, 0, len(response.Teachers))
	for _, raw := range response.Teachers {
		teachers = append(teachers, Teacher{
			CourseID: raw.CourseId,
			UserID:   raw.UserId,
			Profile:  mapRosterProfile(raw.Profile),
		})
	}
	return teachers, nil
}

// ListAssignments returns published coursework for a course. A 403 or 404
// degrades to an empty slice: students routinely lack coursework read on
// teacher-scoped courses.
func (client *Client) ListAssignments(ctx context.Context, courseID string) ([]Assignment, error) {
	response, err := client.classroomService.Courses.CourseWork.List(courseID).
		CourseWorkStates(AssignmentStatePublished).
		PageSize(client.pageSize).
		Context(ctx).
		Do()
	if err != nil {
		if isExpectedDenial(err) {
			client.logger.Debug("coursework list degraded to empty",
				zap.String("code", "classroom.assignments.degraded"),
				zap.String("course_id", courseID))
			return []Assignment{}, nil
		}
		return nil, fmt.Errorf("classroom.assignments.list_failed: %w", err)
	}
	assignments := make([]Assignment, 0, len(response.CourseWork))
	for _, raw := range response.CourseWork {
		assignments = append(assignments, mapAssignment(raw))
	}
	return assignments, nil
}

// ListSubmissions returns submissions for one coursework item, with the same
// 403/404 degradation as ListAssignments.
func (client *Client) ListSubmissions(ctx context.Context, courseID string, courseworkID string) ([]Submission, error) {
	return client.listSubmissions(ctx, courseID, courseworkID, "")
}

// StudentSubmissionsForUser gathers one user's submissions across all
// coursework in a course.
func (client *Client) StudentSubmissionsForUser(ctx context.Context, courseID string, userID string) ([]Submission, error) {
	assignments, err := client.ListAssignments(ctx, courseID)
	if err != nil {
		return nil, err
	}
	collected := make([]Submission, 0)
	for _, assignment := range assignments {
		submissions, listErr := client.listSubmissions(ctx, courseID, assignment.ID, userID)
		if listErr != nil {
			return nil, listErr
		}
		collected = append(collected, submissions...)
	}
	return collected, nil
}

// CourseStats computes the per-course rollup served by /classroom/stats.
func (client *Client) CourseStats(ctx context.Context, courseID string) (CourseStats, error) {
	students, studentsErr := client.ListStudents(ctx, courseID)
	if studentsErr != nil {
		return CourseStats{}, studentsErr
	}
	assignments, assignmentsErr := client.ListAssignments(ctx, courseID)
	if assignmentsErr != nil {
		return CourseStats{}, assignmentsErr
	}

	stats := CourseStats{
		CourseID:         courseID,
		TotalStudents:    len(students),
		TotalAssignments: len(assignments),
	}
	for _, assignment := range assignments {
		submissions, listErr := client.ListSubmissions(ctx, courseID, assignment.ID)
		if listErr != nil {
			return CourseStats{}, listErr
		}
		stats.TotalSubmissions += len(submissions)
		for _, submission := range submissions {
			if submission.Late {
				stats.LateSubmissions++
			}
			if submission.AssignedGrade != nil {
				stats.GradedSubmissions++
			}
		}
	}
	if stats.TotalAssignments > 0 && stats.TotalStudents > 0 {
		stats.CompletionRate = float64(stats.TotalSubmissions) / float64(stats.TotalStudents*stats.TotalAssignments) * 100
	}
	if stats.TotalSubmissions > 0 {
		stats.GradingRate = float64(stats.GradedSubmissions) / float64(stats.TotalSubmissions) * 100
	}
	return stats, nil
}

func (client *Client) listSubmissions(ctx context.Context, courseID string, courseworkID string, userID string) ([]Submission, error) {
	call := client.classroomService.Courses.CourseWork.StudentSubmissions.List(courseID, courseworkID).
		PageSize(client.pageSize).
		Context(ctx)
	if userID != "" {
		call = call.UserId(userID)
	}
	response, err := call.Do()
	if err != nil {
		if isExpectedDenial(err) {
			client.logger.Debug("submissions list degraded to empty",
				zap.String("code", "classroom.submissions.degraded"),
				zap.String("course_id", courseID),
				zap.String("coursework_id", courseworkID))
			return []Submission{}, nil
		}
		return nil, fmt.Errorf("classroom.submissions.list_failed: %w", err)
	}
	submissions := make([]Submission, 0, len(response.StudentSubmissions))
	for _, raw := range response.StudentSubmissions {
		submissions = append(submissions, mapSubmission(raw))
	}
	return submissions, nil
}

// isExpectedDenial reports the 403/404 responses that are normal for student
// accounts enumerating teacher-only resources.
func isExpectedDenial(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusNotFound
}

func mapCourse(raw *classroomapi.Course) Course {
	if raw == nil {
		return Course{}
	}
	return Course{
		ID:                raw.Id,
		Name:              raw.Name,
		Section:           raw.Section,
		Description:       raw.Description,
		Room:              raw.Room,
		OwnerID:           raw.OwnerId,
		CourseState:       raw.CourseState,
		EnrollmentCode:    raw.EnrollmentCode,
		AlternateLink:     raw.AlternateLink,
		TeacherGroupEmail: raw.TeacherGroupEmail,
		TeacherFolder:     raw.TeacherFolder != nil,
		CreationTime:      parseAPITime(raw.CreationTime),
		UpdateTime:        parseAPITime(raw.UpdateTime),
	}
}

func mapRosterProfile(raw *classroomapi.UserProfile) RosterProfile {
	if raw == nil {
		return RosterProfile{}
	}
	profile := RosterProfile{
		ID:           raw.Id,
		EmailAddress: raw.EmailAddress,
		PhotoURL:     raw.PhotoUrl,
	}
	if raw.Name != nil {
		profile.Name = Name{
			GivenName:  raw.Name.GivenName,
			FamilyName: raw.Name.FamilyName,
			FullName:   raw.Name.FullName,
		}
	}
	if profile.Name.FullName == "" {
		profile.Name.FullName = raw.EmailAddress
	}
	return profile
}

func mapAssignment(raw *classroomapi.CourseWork) Assignment {
	if raw == nil {
		return Assignment{}
	}
	assignment := Assignment{
		CourseID:      raw.CourseId,
		ID:            raw.Id,
		Title:         raw.Title,
		Description:   raw.Description,
		State:         raw.State,
		AlternateLink: raw.AlternateLink,
		MaxPoints:     raw.MaxPoints,
		WorkType:      raw.WorkType,
		CreationTime:  parseAPITime(raw.CreationTime),
		UpdateTime:    parseAPITime(raw.UpdateTime),
	}
	if raw.DueDate != nil {
		assignment.DueDate = &DueDate{
			Year:  int(raw.DueDate.Year),
			Month: int(raw.DueDate.Month),
			Day:   int(raw.DueDate.Day),
		}
	}
	return assignment
}

func mapSubmission(raw *classroomapi.StudentSubmission) Submission {
	if raw == nil {
		return Submission{}
	}
	submission := Submission{
		CourseID:      raw.CourseId,
		CourseWorkID:  raw.CourseWorkId,
		ID:            raw.Id,
		UserID:        raw.UserId,
		State:         raw.State,
		Late:          raw.Late,
		AlternateLink: raw.AlternateLink,
		CreationTime:  parseAPITime(raw.CreationTime),
		UpdateTime:    parseAPITime(raw.UpdateTime),
	}
	// The API omits assignedGrade until work is graded; the generated struct
	// then reports zero, so a zero grade is treated as ungraded.
	if raw.AssignedGrade != 0 {
		grade := raw.AssignedGrade
		submission.AssignedGrade = &grade
	}
	if raw.DraftGrade != 0 {
		draft := raw.DraftGrade
		submission.DraftGrade = &draft
	}
	return submission
}

func parseAPITime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
