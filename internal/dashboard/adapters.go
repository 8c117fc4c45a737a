// Package dashboard reshapes raw Classroom collections into the view models
// the dashboard screens render. Every function is pure, synchronous, and
// total over empty inputs; rates with a zero denominator yield 0.
package dashboard

import (
	"math"
	"sort"
	"time"

	"github.com/mprlab/classboard/internal/classroom"
)

// Stats is the headline counter block of the dashboard.
type Stats struct {
	TotalStudents      int `json:"totalStudents"`
	ActiveStudents     int `json:"activeStudents"`
	TotalCourses       int `json:"totalCourses"`
	ActiveCourses      int `json:"activeCourses"`
	TotalAssignments   int `json:"totalAssignments"`
	PendingAssignments int `json:"pendingAssignments"`
	CompletionRate     int `json:"completionRate"`
	AverageGrade       int `json:"averageGrade"`
}

// StudentStatus buckets a student's standing for the progress table.
type StudentStatus string

const (
	StudentActive   StudentStatus = "active"
	StudentInactive StudentStatus = "inactive"
	StudentAtRisk   StudentStatus = "at-risk"
)

// StudentProgressEntry is one row of the per-student progress table.
type StudentProgressEntry struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Email                string        `json:"email"`
	PhotoURL             string        `json:"photoUrl,omitempty"`
	CourseID             string        `json:"courseId"`
	CourseName           string        `json:"courseName"`
	Progress             int           `json:"progress"`
	Status               StudentStatus `json:"status"`
	LastActivity         string        `json:"lastActivity"`
	AssignmentsCompleted int           `json:"assignmentsCompleted"`
	TotalAssignments     int           `json:"totalAssignments"`
	AverageGrade         int           `json:"averageGrade"`
	LateSubmissions      int           `json:"lateSubmissions"`
}

// CourseSummary is one card of the course overview.
type CourseSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Section         string `json:"section,omitempty"`
	Description     string `json:"description,omitempty"`
	StudentCount    int    `json:"studentCount"`
	AssignmentCount int    `json:"assignmentCount"`
	CompletionRate  int    `json:"completionRate"`
	LastActivity    string `json:"lastActivity"`
	Status          string `json:"status"`
}

// AssignmentSummary is one row of the assignment status table.
type AssignmentSummary struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	CourseID        string     `json:"courseId"`
	CourseName      string     `json:"courseName"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	MaxPoints       float64    `json:"maxPoints,omitempty"`
	SubmissionCount int        `json:"submissionCount"`
	TotalStudents   int        `json:"totalStudents"`
	CompletionRate  int        `json:"completionRate"`
	AverageGrade    *int       `json:"averageGrade,omitempty"`
	Status          string     `json:"status"`
}

// ActivityEntry is one item of the recent-activity feed.
type ActivityEntry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	CourseID    string    `json:"courseId"`
	CourseName  string    `json:"courseName"`
	UserID      string    `json:"userId,omitempty"`
	UserName    string    `json:"userName,omitempty"`
}

const (
	activityAssignmentCreated   = "assignment_created"
	activityAssignmentSubmitted = "assignment_submitted"

	unknownCourseName = "Unknown course"
	recentActivityCap = 10
)

// ComputeStats reduces the four raw collections into the headline counters.
func ComputeStats(courses []classroom.Course, students []classroom.Student, assignments []classroom.Assignment, submissions []classroom.Submission) Stats {
	stats := Stats{
		TotalStudents:    len(students),
		ActiveStudents:   len(students),
		TotalCourses:     len(courses),
		TotalAssignments: len(assignments),
	}
	for _, course := range courses {
		if course.CourseState == classroom.CourseStateActive {
			stats.ActiveCourses++
		}
	}

	completed := 0
	gradeSum := 0.0
	gradeCount := 0
	for _, submission := range submissions {
		if submission.Completed() {
			completed++
		}
		if submission.AssignedGrade != nil {
			gradeSum += *submission.AssignedGrade
			gradeCount++
		}
	}
	stats.PendingAssignments = stats.TotalAssignments - completed
	stats.CompletionRate = roundRate(completed, stats.TotalAssignments*stats.TotalStudents)
	if gradeCount > 0 {
		stats.AverageGrade = roundHalfUp(gradeSum / float64(gradeCount))
	}
	return stats
}

// StudentProgress builds one progress row per student, filtering assignments
// and submissions to the student's course and user id.
func StudentProgress(students []classroom.Student, courses []classroom.Course, assignments []classroom.Assignment, submissions []classroom.Submission, now time.Time) []StudentProgressEntry {
	entries := make([]StudentProgressEntry, 0, len(students))
	for _, student := range students {
		courseAssignments := 0
		for _, assignment := range assignments {
			if assignment.CourseID == student.CourseID {
				courseAssignments++
			}
		}

		completed := 0
		late := 0
		gradeSum := 0.0
		gradeCount := 0
		var lastUpdate time.Time
		for _, submission := range submissions {
			if submission.UserID != student.UserID {
				continue
			}
			if submission.Completed() {
				completed++
			}
			if submission.Late {
				late++
			}
			if submission.AssignedGrade != nil {
				gradeSum += *submission.AssignedGrade
				gradeCount++
			}
			if submission.UpdateTime.After(lastUpdate) {
				lastUpdate = submission.UpdateTime
			}
		}

		progress := roundRate(completed, courseAssignments)
		status := StudentActive
		if progress < 50 || late > 2 {
			status = StudentAtRisk
		} else if progress == 0 {
			status = StudentInactive
		}

		lastActivity := "No recent activity"
		if !lastUpdate.IsZero() {
			lastActivity = RelativeTime(lastUpdate, now)
		}

		averageGrade := 0
		if gradeCount > 0 {
			averageGrade = roundHalfUp(gradeSum / float64(gradeCount))
		}

		entries = append(entries, StudentProgressEntry{
			ID:                   student.UserID,
			Name:                 student.Profile.Name.FullName,
			Email:                student.Profile.EmailAddress,
			PhotoURL:             student.Profile.PhotoURL,
			CourseID:             student.CourseID,
			CourseName:           courseName(courses, student.CourseID),
			Progress:             progress,
			Status:               status,
			LastActivity:         lastActivity,
			AssignmentsCompleted: completed,
			TotalAssignments:     courseAssignments,
			AverageGrade:         averageGrade,
			LateSubmissions:      late,
		})
	}
	return entries
}

// CourseSummaries builds one card per course with real completion figures.
func CourseSummaries(courses []classroom.Course, students []classroom.Student, assignments []classroom.Assignment, submissions []classroom.Submission, now time.Time) []CourseSummary {
	summaries := make([]CourseSummary, 0, len(courses))
	for _, course := range courses {
		studentCount := 0
		for _, student := range students {
			if student.CourseID == course.ID {
				studentCount++
			}
		}
		assignmentCount := 0
		for _, assignment := range assignments {
			if assignment.CourseID == course.ID {
				assignmentCount++
			}
		}
		completed := 0
		for _, submission := range submissions {
			if submission.CourseID == course.ID && submission.Completed() {
				completed++
			}
		}

		status := "archived"
		if course.CourseState == classroom.CourseStateActive {
			status = "active"
		}

		summaries = append(summaries, CourseSummary{
			ID:              course.ID,
			Name:            course.Name,
			Section:         course.Section,
			Description:     course.Description,
			StudentCount:    studentCount,
			AssignmentCount: assignmentCount,
			CompletionRate:  roundRate(completed, assignmentCount*studentCount),
			LastActivity:    RelativeTime(course.UpdateTime, now),
			Status:          status,
		})
	}
	return summaries
}

// AssignmentSummaries builds one row per assignment.
func AssignmentSummaries(assignments []classroom.Assignment, courses []classroom.Course, submissions []classroom.Submission, students []classroom.Student) []AssignmentSummary {
	summaries := make([]AssignmentSummary, 0, len(assignments))
	for _, assignment := range assignments {
		courseStudents := 0
		for _, student := range students {
			if student.CourseID == assignment.CourseID {
				courseStudents++
			}
		}

		submissionCount := 0
		gradeSum := 0.0
		gradeCount := 0
		for _, submission := range submissions {
			if submission.CourseWorkID != assignment.ID {
				continue
			}
			submissionCount++
			if submission.AssignedGrade != nil {
				gradeSum += *submission.AssignedGrade
				gradeCount++
			}
		}

		summary := AssignmentSummary{
			ID:              assignment.ID,
			Title:           assignment.Title,
			Description:     assignment.Description,
			CourseID:        assignment.CourseID,
			CourseName:      courseName(courses, assignment.CourseID),
			MaxPoints:       assignment.MaxPoints,
			SubmissionCount: submissionCount,
			TotalStudents:   courseStudents,
			CompletionRate:  roundRate(submissionCount, courseStudents),
			Status:          "draft",
		}
		if assignment.State == classroom.AssignmentStatePublished {
			summary.Status = "published"
		}
		if assignment.DueDate != nil {
			due := time.Date(assignment.DueDate.Year, time.Month(assignment.DueDate.Month), assignment.DueDate.Day, 0, 0, 0, 0, time.UTC)
			summary.DueDate = &due
		}
		if gradeCount > 0 {
			average := roundHalfUp(gradeSum / float64(gradeCount))
			summary.AverageGrade = &average
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// RecentActivity merges assignment-created and turned-in events, newest
// first, capped at the ten most recent.
func RecentActivity(assignments []classroom.Assignment, submissions []classroom.Submission, courses []classroom.Course, students []classroom.Student) []ActivityEntry {
	activities := make([]ActivityEntry, 0, len(assignments)+len(submissions))

	for _, assignment := range assignments {
		activities = append(activities, ActivityEntry{
			ID:          "assignment_" + assignment.ID,
			Type:        activityAssignmentCreated,
			Title:       "New assignment",
			Description: assignment.Title,
			Timestamp:   assignment.CreationTime,
			CourseID:    assignment.CourseID,
			CourseName:  courseName(courses, assignment.CourseID),
		})
	}

	for _, submission := range submissions {
		if submission.State != classroom.SubmissionStateTurnedIn {
			continue
		}
		studentName := "A student"
		for _, student := range students {
			if student.UserID == submission.UserID {
				studentName = student.Profile.Name.FullName
				break
			}
		}
		activities = append(activities, ActivityEntry{
			ID:          "submission_" + submission.ID,
			Type:        activityAssignmentSubmitted,
			Title:       "Assignment turned in",
			Description: studentName + " turned in an assignment",
			Timestamp:   submission.UpdateTime,
			CourseID:    submission.CourseID,
			CourseName:  courseName(courses, submission.CourseID),
			UserID:      submission.UserID,
			UserName:    studentName,
		})
	}

	sort.SliceStable(activities, func(left, right int) bool {
		return activities[left].Timestamp.After(activities[right].Timestamp)
	})
	if len(activities) > recentActivityCap {
		activities = activities[:recentActivityCap]
	}
	return activities
}

func courseName(courses []classroom.Course, courseID string) string {
	for _, course := range courses {
		if course.ID == courseID {
			return course.Name
		}
	}
	return unknownCourseName
}

// roundRate computes numerator/denominator as a whole percentage, 0 when the
// denominator is 0.
func roundRate(numerator int, denominator int) int {
	if denominator <= 0 {
		return 0
	}
	return roundHalfUp(float64(numerator) / float64(denominator) * 100)
}

func roundHalfUp(value float64) int {
	return int(math.Floor(value + 0.5))
}
