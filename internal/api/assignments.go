package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"classboard/internal/transport"
)

// AssignmentService covers assignment CRUD, student submissions, and
// grading.
type AssignmentService struct {
	http *transport.Client
}

// Assignment is graded work attached to a lesson.
type Assignment struct {
	ID          string     `json:"id"`
	LessonID    string     `json:"lessonId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// CreateAssignment is the creation payload.
type CreateAssignment struct {
	LessonID    string     `json:"lessonId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// UpdateAssignment carries the editable assignment fields.
type UpdateAssignment struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Submission is a student's answer to an assignment.
type Submission struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignmentId"`
	StudentEmail string    `json:"studentEmail"`
	Content      string    `json:"content"`
	Grade        *float64  `json:"grade,omitempty"`
	Feedback     string    `json:"feedback,omitempty"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// ByLesson pages through the assignments of one lesson.
func (s *AssignmentService) ByLesson(ctx context.Context, lessonID string, page, pageSize int) ([]Assignment, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	var out struct {
		envelope
		Assignments []Assignment `json:"assignments"`
		Total       int          `json:"total"`
	}
	path := fmt.Sprintf("/assignments/lesson/%s?page=%d&pageSize=%d", url.PathEscape(lessonID), page, pageSize)
	if err := s.http.Get(ctx, path, &out); err != nil {
		return nil, 0, err
	}
	return out.Assignments, out.Total, nil
}

// Create adds a new assignment to a lesson.
func (s *AssignmentService) Create(ctx context.Context, payload CreateAssignment) error {
	var out envelope
	if err := s.http.Post(ctx, "/assignments", payload, &out); err != nil {
		return err
	}
	return out.reject("create assignment")
}

// Update edits an existing assignment.
func (s *AssignmentService) Update(ctx context.Context, assignmentID string, payload UpdateAssignment) error {
	var out envelope
	if err := s.http.Put(ctx, "/assignments/"+url.PathEscape(assignmentID), payload, &out); err != nil {
		return err
	}
	return out.reject("update assignment")
}

// Delete removes an assignment.
func (s *AssignmentService) Delete(ctx context.Context, assignmentID string) error {
	var out envelope
	if err := s.http.Delete(ctx, "/assignments/"+url.PathEscape(assignmentID), &out); err != nil {
		return err
	}
	return out.reject("delete assignment")
}

// Submissions lists every submission for an assignment.
func (s *AssignmentService) Submissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	var out struct {
		envelope
		Submissions []Submission `json:"submissions"`
	}
	if err := s.http.Get(ctx, "/assignments/"+url.PathEscape(assignmentID)+"/submissions", &out); err != nil {
		return nil, err
	}
	return out.Submissions, nil
}

// Grade records a grade and feedback on a submission.
func (s *AssignmentService) Grade(ctx context.Context, submissionID string, grade float64, feedback string) error {
	var out envelope
	body := map[string]any{"grade": grade, "feedback": feedback}
	if err := s.http.Put(ctx, "/submissions/"+url.PathEscape(submissionID)+"/grade", body, &out); err != nil {
		return err
	}
	return out.reject("grade submission")
}

// Submit records the student's answer to an assignment.
func (s *AssignmentService) Submit(ctx context.Context, assignmentID, content string) error {
	var out envelope
	body := map[string]string{"assignmentId": assignmentID, "content": content}
	if err := s.http.Post(ctx, "/submissions", body, &out); err != nil {
		return err
	}
	return out.reject("submit assignment")
}

// MySubmission returns the student's own submission for an assignment,
// or nil when none exists yet.
func (s *AssignmentService) MySubmission(ctx context.Context, assignmentID string) (*Submission, error) {
	var out struct {
		envelope
		Submission *Submission `json:"submission"`
	}
	if err := s.http.Get(ctx, "/assignments/"+url.PathEscape(assignmentID)+"/submission", &out); err != nil {
		return nil, err
	}
	return out.Submission, nil
}

// DeleteSubmission withdraws a submission.
func (s *AssignmentService) DeleteSubmission(ctx context.Context, submissionID string) error {
	var out envelope
	if err := s.http.Delete(ctx, "/submissions/"+url.PathEscape(submissionID), &out); err != nil {
		return err
	}
	return out.reject("delete submission")
}
