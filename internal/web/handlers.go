// Package web exposes the JSON API of the dashboard: the resolved session
// profile, thin read-only mirrors of Google Classroom collections, and the
// aggregated dashboard overview.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/classboard/internal/classroom"
	"github.com/mprlab/classboard/internal/dashboard"
	"github.com/mprlab/classboard/internal/session"
	"github.com/mprlab/classboard/pkg/tokencookie"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// ClientFactory builds a request-scoped Classroom client for a bearer token.
type ClientFactory func(ctx context.Context, accessToken string) (*classroom.Client, error)

// APIDeps bundles the collaborators of the API handlers. Zero values are
// filled with production wiring; tests substitute fakes.
type APIDeps struct {
	Resolver *session.Resolver
	Clients  ClientFactory
	Logger   *zap.Logger
	Clock    tokencookie.Clock
}

func (deps APIDeps) withDefaults() APIDeps {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = tokencookie.SystemClock()
	}
	if deps.Clients == nil {
		logger := deps.Logger
		deps.Clients = func(ctx context.Context, accessToken string) (*classroom.Client, error) {
			return classroom.NewClient(ctx, accessToken, classroom.WithLogger(logger))
		}
	}
	if deps.Resolver == nil {
		fetcher := session.NewClassroomFetcher(deps.Logger)
		deps.Resolver = session.NewResolver(fetcher, fetcher,
			session.WithLogger(deps.Logger),
			session.WithClock(deps.Clock))
	}
	return deps
}

const (
	messageAuthExpired    = "Authentication expired. Please sign in again."
	messageCourseRequired = "courseId is required"
)

// MountAPIRoutes registers the authenticated JSON endpoints. Every route
// requires a usable access token; the middleware answers 401 otherwise.
func MountAPIRoutes(router gin.IRouter, deps APIDeps) {
	deps = deps.withDefaults()

	protected := router.Group("", tokencookie.GinMiddleware())
	protected.GET("/session/profile", handleSessionProfile(deps))
	protected.GET("/classroom/courses", handleCourses(deps))
	protected.GET("/classroom/students", handleStudents(deps))
	protected.GET("/classroom/assignments", handleAssignments(deps))
	protected.GET("/classroom/submissions", handleSubmissions(deps))
	protected.GET("/classroom/stats", handleCourseStats(deps))
	protected.GET("/dashboard/overview", handleOverview(deps))
}

func handleSessionProfile(deps APIDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		credentials := tokencookie.FromRequest(contextGin.Request)
		snapshot := deps.Resolver.Resolve(contextGin.Request.Context(), credentials)
		switch snapshot.State {
		case session.StateAuthenticated:
			contextGin.JSON(http.StatusOK, gin.H{"success": true, "data": snapshot.User})
		case session.StateUnauthenticated:
			if snapshot.Message == session.CodeNoClassroomAccess {
				contextGin.JSON(http.StatusForbidden, gin.H{"success": false, "error": session.CodeNoClassroomAccess})
				return
			}
			contextGin.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": messageAuthExpired})
		default:
			contextGin.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch user profile"})
		}
	}
}

func handleCourses(deps APIDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		client, ok := clientFor(contextGin, deps)
		if !ok {
			return
		}
		courses, err := client.ListCourses(contextGin.Request.Context())
		if err != nil {
			respondFetchError(contextGin, deps, err, "Failed to fetch courses")
			return
		}
		respondCollection(contextGin, courses, len(courses))
	}
}

func handleStudents(deps APIDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		courseID, ok := requireCourseID(contextGin)
		if !ok {
			return
		}
		client, ok := clientFor(contextGin, deps)
		if !ok {
			return
		}
		students, err := client.ListStudents(contextGin.Request.Context(), courseID)
		if err != nil {
			respondFetchError(contextGin, deps, err, "Failed to fetch students")
			return
		}
		respondCollection(contextGin, students, len(students))
	}
}

func handleAssignments(deps APIDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		courseID, ok := requireCourseID(contextGin)
		if !ok {
			return
		}
		client, ok := clientFor(contextGin, deps)
		if !ok {
			return
		}
		assignments, err := client.ListAssignments(contextGin.Request.Context(), courseID)
		if err != nil {
			respondFetchError(contextGin, deps, err, "Failed to fetch assignments")
			return
		}
		respondCollection(contextGin, assignments, len(assignments))
	}
}

func handleSubmissions(deps APIDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		courseID, ok := requireCourseID(contextGin)
		if !ok {
			return
		}
		// The dash selects submissions across all coursework of the course.
		assignmentID := contextGin.Query("assignmentId")
		if assignmentID == "" {
			assignmentID = "-"
		}
		client, ok := clientFor(contextGin, deps)
		if !ok {
			return
		}
		submissions, err := client.ListSubmissions(contextGin.Request.Context(), courseID, assignmentID)
		if err != nil {
			respondFetchError(contextGin, deps, err, "Failed to fetch submissions")
			return
		}
		respondCollection(contextGin, submissions, len(submissions))
	}
}

func handleCourseStats(deps APIDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		courseID, ok := requireCourseID(contextGin)
		if !ok {
			return
		}
		client, ok := clientFor(contextGin, deps)
		if !ok {
			return
		}
		stats, err := client.CourseStats(contextGin.Request.Context(), courseID)
		if err != nil {
			respondFetchError(contextGin, deps, err, "Failed to fetch course statistics")
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
	}
}

// handleOverview fans out across every course, joins the raw collections,
// and feeds them through the aggregation layer. Each roster and coursework
// branch degrades independently; a failed branch contributes nothing.
func handleOverview(deps APIDeps) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		client, ok := clientFor(contextGin, deps)
		if !ok {
			return
		}
		requestCtx := contextGin.Request.Context()

		courses, coursesErr := client.ListCourses(requestCtx)
		if coursesErr != nil {
			respondFetchError(contextGin, deps, coursesErr, "Failed to fetch dashboard data")
			return
		}

		var mutex sync.Mutex
		var students []classroom.Student
		var assignments []classroom.Assignment

		var group sync.WaitGroup
		for _, course := range courses {
			group.Add(1)
			go func(courseID string) {
				defer group.Done()
				courseStudents, studentsErr := client.ListStudents(requestCtx, courseID)
				if studentsErr != nil {
					deps.Logger.Warn("student roster unavailable for overview",
						zap.String("code", "web.overview.students"),
						zap.String("course_id", courseID),
						zap.Error(studentsErr))
					courseStudents = nil
				}
				courseAssignments, assignmentsErr := client.ListAssignments(requestCtx, courseID)
				if assignmentsErr != nil {
					deps.Logger.Warn("coursework unavailable for overview",
						zap.String("code", "web.overview.assignments"),
						zap.String("course_id", courseID),
						zap.Error(assignmentsErr))
					courseAssignments = nil
				}
				mutex.Lock()
				students = append(students, courseStudents...)
				assignments = append(assignments, courseAssignments...)
				mutex.Unlock()
			}(course.ID)
		}
		group.Wait()

		var submissions []classroom.Submission
		for _, assignment := range assignments {
			group.Add(1)
			go func(courseID string, courseworkID string) {
				defer group.Done()
				items, submissionsErr := client.ListSubmissions(requestCtx, courseID, courseworkID)
				if submissionsErr != nil {
					deps.Logger.Warn("submissions unavailable for overview",
						zap.String("code", "web.overview.submissions"),
						zap.String("course_id", courseID),
						zap.String("coursework_id", courseworkID),
						zap.Error(submissionsErr))
					return
				}
				mutex.Lock()
				submissions = append(submissions, items...)
				mutex.Unlock()
			}(assignment.CourseID, assignment.ID)
		}
		group.Wait()

		now := deps.Clock.Now()
		contextGin.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"stats":           dashboard.ComputeStats(courses, students, assignments, submissions),
				"studentProgress": dashboard.StudentProgress(students, courses, assignments, submissions, now),
				"courses":         dashboard.CourseSummaries(courses, students, assignments, submissions, now),
				"assignments":     dashboard.AssignmentSummaries(assignments, courses, submissions, students),
				"recentActivity":  dashboard.RecentActivity(assignments, submissions, courses, students),
			},
		})
	}
}

func clientFor(contextGin *gin.Context, deps APIDeps) (*classroom.Client, bool) {
	client, err := deps.Clients(contextGin.Request.Context(), tokencookie.TokenFromContext(contextGin))
	if err != nil {
		deps.Logger.Error("classroom client construction failed",
			zap.String("code", "web.client.init"),
			zap.Error(err))
		contextGin.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to reach Google Classroom"})
		return nil, false
	}
	return client, true
}

func requireCourseID(contextGin *gin.Context) (string, bool) {
	courseID := contextGin.Query("courseId")
	if courseID == "" {
		contextGin.JSON(http.StatusBadRequest, gin.H{"success": false, "error": messageCourseRequired})
		return "", false
	}
	return courseID, true
}

func respondCollection(contextGin *gin.Context, data any, count int) {
	contextGin.JSON(http.StatusOK, gin.H{"success": true, "data": data, "count": count})
}

// respondFetchError maps an upstream rejection of the credential to 401 and
// everything else to an opaque 500; raw provider errors stay in the logs.
func respondFetchError(contextGin *gin.Context, deps APIDeps, err error, message string) {
	deps.Logger.Error("classroom fetch failed",
		zap.String("code", "web.fetch.failed"),
		zap.String("path", contextGin.FullPath()),
		zap.Error(err))
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		contextGin.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": messageAuthExpired})
		return
	}
	contextGin.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": message})
}
