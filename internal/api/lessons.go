package api

import (
	"context"
	"net/url"

	"classboard/internal/transport"
)

// LessonService covers lesson CRUD on the instructor side and the
// per-student lesson list on the student side.
type LessonService struct {
	http *transport.Client
}

// Lesson is a unit of classroom content.
type Lesson struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	AssignedTo  []string `json:"assignedTo,omitempty"`
	Done        bool     `json:"done"`
}

// CreateLesson is the lesson creation payload.
type CreateLesson struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// AssignLesson assigns a lesson to students, addressed by phone number.
type AssignLesson struct {
	LessonID      string   `json:"lessonId"`
	StudentPhones []string `json:"studentPhones"`
}

// List returns every lesson the instructor owns.
func (s *LessonService) List(ctx context.Context) ([]Lesson, error) {
	var out struct {
		envelope
		Lessons []Lesson `json:"lessons"`
	}
	if err := s.http.Get(ctx, "/lessons", &out); err != nil {
		return nil, err
	}
	return out.Lessons, nil
}

// Create adds a new lesson.
func (s *LessonService) Create(ctx context.Context, payload CreateLesson) error {
	var out envelope
	if err := s.http.Post(ctx, "/lessons", payload, &out); err != nil {
		return err
	}
	return out.reject("create lesson")
}

// Assign attaches a lesson to one or more students.
func (s *LessonService) Assign(ctx context.Context, payload AssignLesson) error {
	var out envelope
	if err := s.http.Post(ctx, "/lessons/assign", payload, &out); err != nil {
		return err
	}
	return out.reject("assign lesson")
}

// MyLessons returns the lessons assigned to the student with the given
// phone number.
func (s *LessonService) MyLessons(ctx context.Context, phoneNumber string) ([]Lesson, error) {
	var out struct {
		envelope
		Lessons []Lesson `json:"lessons"`
	}
	query := url.Values{"phoneNumber": {phoneNumber}}
	if err := s.http.Get(ctx, "/lessons/mine?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Lessons, nil
}

// MarkDone records a lesson as completed by the student.
func (s *LessonService) MarkDone(ctx context.Context, lessonID string) error {
	var out envelope
	if err := s.http.Post(ctx, "/lessons/done", map[string]string{"lessonId": lessonID}, &out); err != nil {
		return err
	}
	return out.reject("mark lesson done")
}
