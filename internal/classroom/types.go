package classroom

import "time"

// Course state values reported by Google Classroom.
const (
	CourseStateActive   = "ACTIVE"
	CourseStateArchived = "ARCHIVED"
)

// Submission state values reported by Google Classroom.
const (
	SubmissionStateNew       = "NEW"
	SubmissionStateCreated   = "CREATED"
	SubmissionStateTurnedIn  = "TURNED_IN"
	SubmissionStateReturned  = "RETURNED"
	SubmissionStateReclaimed = "RECLAIMED_BY_STUDENT"
)

// Assignment state values reported by Google Classroom.
const (
	AssignmentStatePublished = "PUBLISHED"
	AssignmentStateDraft     = "DRAFT"
)

// Course mirrors a Classroom course. IDs are provider-issued; no local
// identity is minted. TeacherAccess and Teachers come from the per-course
// teacher probe and are a heuristic hint, not ground truth.
type Course struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Section           string    `json:"section,omitempty"`
	Description       string    `json:"description,omitempty"`
	Room              string    `json:"room,omitempty"`
	OwnerID           string    `json:"ownerId"`
	CourseState       string    `json:"courseState"`
	EnrollmentCode    string    `json:"enrollmentCode,omitempty"`
	AlternateLink     string    `json:"alternateLink,omitempty"`
	TeacherGroupEmail string    `json:"teacherGroupEmail,omitempty"`
	TeacherFolder     bool      `json:"teacherFolder,omitempty"`
	TeacherAccess     bool      `json:"teacherAccess"`
	Teachers          []Teacher `json:"teachers,omitempty"`
	CreationTime      time.Time `json:"creationTime"`
	UpdateTime        time.Time `json:"updateTime"`
}

// Name groups the name parts of a Classroom profile.
type Name struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	FullName   string `json:"fullName"`
}

// RosterProfile is the embedded profile of a roster entry.
type RosterProfile struct {
	ID           string `json:"id"`
	Name         Name   `json:"name"`
	EmailAddress string `json:"emailAddress"`
	PhotoURL     string `json:"photoUrl,omitempty"`
}

// Student is a course-scoped student roster entry.
type Student struct {
	CourseID string        `json:"courseId"`
	UserID   string        `json:"userId"`
	Profile  RosterProfile `json:"profile"`
}

// Teacher is a course-scoped teacher roster entry.
type Teacher struct {
	CourseID string        `json:"courseId"`
	UserID   string        `json:"userId"`
	Profile  RosterProfile `json:"profile"`
}

// DueDate is the calendar date an assignment is due, without a time zone.
type DueDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Assignment mirrors a Classroom coursework item.
type Assignment struct {
	CourseID      string    `json:"courseId"`
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	State         string    `json:"state"`
	AlternateLink string    `json:"alternateLink,omitempty"`
	MaxPoints     float64   `json:"maxPoints,omitempty"`
	WorkType      string    `json:"workType,omitempty"`
	DueDate       *DueDate  `json:"dueDate,omitempty"`
	CreationTime  time.Time `json:"creationTime"`
	UpdateTime    time.Time `json:"updateTime"`
}

// Submission mirrors a Classroom student submission. AssignedGrade is nil
// until the submission has been graded.
type Submission struct {
	CourseID      string    `json:"courseId"`
	CourseWorkID  string    `json:"courseWorkId"`
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	State         string    `json:"state"`
	Late          bool      `json:"late"`
	DraftGrade    *float64  `json:"draftGrade,omitempty"`
	AssignedGrade *float64  `json:"assignedGrade,omitempty"`
	AlternateLink string    `json:"alternateLink,omitempty"`
	CreationTime  time.Time `json:"creationTime"`
	UpdateTime    time.Time `json:"updateTime"`
}

// Completed reports whether the submission counts as handed in.
func (submission Submission) Completed() bool {
	return submission.State == SubmissionStateTurnedIn || submission.State == SubmissionStateReturned
}

// UserProfile is the normalized identity payload from the userinfo endpoint.
type UserProfile struct {
	ID            string `json:"id"`
	EmailAddress  string `json:"emailAddress"`
	Name          Name   `json:"name"`
	PhotoURL      string `json:"photoUrl,omitempty"`
	VerifiedEmail bool   `json:"verified"`
	Locale        string `json:"locale,omitempty"`
}

// CourseStats is the per-course rollup served by /classroom/stats.
type CourseStats struct {
	CourseID          string  `json:"courseId"`
	TotalStudents     int     `json:"totalStudents"`
	TotalAssignments  int     `json:"totalAssignments"`
	TotalSubmissions  int     `json:"totalSubmissions"`
	LateSubmissions   int     `json:"lateSubmissions"`
	GradedSubmissions int     `json:"gradedSubmissions"`
	CompletionRate    float64 `json:"completionRate"`
	GradingRate       float64 `json:"gradingRate"`
}
