package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classboard/internal/api"
	"classboard/internal/apitest"
	"classboard/internal/transport"
	"classboard/pkg/types"
)

type staticToken string

func (s staticToken) Token() (string, error) { return string(s), nil }

func newClient(t *testing.T, role types.Role, identity string) (*api.Client, *apitest.Server) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	srv.SeedInstructor("Dr. Pham", "+15551234567")
	srv.SeedStudent("Alice Nguyen", "alice@example.com")
	srv.SeedStudent("", "bob@school.edu")

	tok := srv.IssueToken(role, identity, time.Hour)
	client := api.New(transport.New(srv.URL(), staticToken(tok)))
	return client, srv
}

func TestInstructorLoginFlow(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.SeedInstructor("Dr. Pham", "+15551234567")

	client := api.New(transport.New(srv.URL(), staticToken("")))
	ctx := context.Background()

	code, err := client.Auth.CreateAccessCode(ctx, "+15551234567")
	require.NoError(t, err)
	require.NotEmpty(t, code)

	wrong, err := client.Auth.VerifyAccessCode(ctx, "+15551234567", "000000")
	require.NoError(t, err)
	assert.False(t, wrong.Success)
	assert.Empty(t, wrong.AccessToken)

	result, err := client.Auth.VerifyAccessCode(ctx, "+15551234567", code)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, types.RoleInstructor, result.UserType)
	require.NotEmpty(t, result.AccessToken)

	// token from the verify step authenticates follow-up calls
	authed := api.New(transport.New(srv.URL(), staticToken(result.AccessToken)))
	profile, err := authed.Auth.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Pham", profile.Name)
	assert.Equal(t, types.RoleInstructor, profile.UserType)
}

func TestCreateAccessCodeRejectsBadPhone(t *testing.T) {
	client := api.New(transport.New("http://unused.invalid", staticToken("")))
	_, err := client.Auth.CreateAccessCode(context.Background(), "not-a-phone")
	assert.ErrorIs(t, err, types.ErrInvalidPhone)
}

func TestStudentRoster(t *testing.T) {
	client, _ := newClient(t, types.RoleInstructor, "+15551234567")
	ctx := context.Background()

	students, err := client.Students.List(ctx)
	require.NoError(t, err)
	assert.Len(t, students, 2)

	contacts, err := client.Students.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	byEmail := map[string]types.Contact{}
	for _, c := range contacts {
		byEmail[c.Email] = c
		assert.Equal(t, types.RoleStudent, c.Role)
	}
	assert.Equal(t, "Alice Nguyen", byEmail["alice@example.com"].DisplayName)
	// missing name falls back to a placeholder
	assert.Equal(t, "Unknown", byEmail["bob@school.edu"].DisplayName)

	require.NoError(t, client.Students.Add(ctx, "carol@example.com"))
	assert.ErrorIs(t, client.Students.Add(ctx, "not-an-email"), types.ErrInvalidEmail)

	require.NoError(t, client.Students.Edit(ctx, "carol@example.com", api.UpdateStudent{Name: "Carol Le"}))
	require.NoError(t, client.Students.Delete(ctx, "carol@example.com"))

	var apiErr *transport.APIError
	err = client.Students.Delete(ctx, "carol@example.com")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestLessonLifecycle(t *testing.T) {
	client, _ := newClient(t, types.RoleInstructor, "+15551234567")
	ctx := context.Background()

	require.NoError(t, client.Lessons.Create(ctx, api.CreateLesson{Title: "Fractions", Description: "intro"}))
	lessons, err := client.Lessons.List(ctx)
	require.NoError(t, err)
	require.Len(t, lessons, 1)

	require.NoError(t, client.Lessons.Assign(ctx, api.AssignLesson{
		LessonID:      lessons[0].ID,
		StudentPhones: []string{"+15559990000"},
	}))

	mine, err := client.Lessons.MyLessons(ctx, "+15559990000")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Fractions", mine[0].Title)

	require.NoError(t, client.Lessons.MarkDone(ctx, lessons[0].ID))
	lessons, err = client.Lessons.List(ctx)
	require.NoError(t, err)
	assert.True(t, lessons[0].Done)
}

func TestAssignmentAndSubmissionLifecycle(t *testing.T) {
	instructor, srv := newClient(t, types.RoleInstructor, "+15551234567")
	ctx := context.Background()

	require.NoError(t, instructor.Lessons.Create(ctx, api.CreateLesson{Title: "Algebra"}))
	lessons, err := instructor.Lessons.List(ctx)
	require.NoError(t, err)
	lessonID := lessons[0].ID

	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, instructor.Assignments.Create(ctx, api.CreateAssignment{
		LessonID: lessonID,
		Title:    "Worksheet 1",
		DueDate:  &due,
	}))

	assignments, total, err := instructor.Assignments.ByLesson(ctx, lessonID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, assignments, 1)
	assignmentID := assignments[0].ID

	require.NoError(t, instructor.Assignments.Update(ctx, assignmentID, api.UpdateAssignment{Title: "Worksheet 1b"}))

	studentTok := srv.IssueToken(types.RoleStudent, "alice@example.com", time.Hour)
	student := api.New(transport.New(srv.URL(), staticToken(studentTok)))

	require.NoError(t, student.Assignments.Submit(ctx, assignmentID, "my answers"))
	mine, err := student.Assignments.MySubmission(ctx, assignmentID)
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.Equal(t, "my answers", mine.Content)
	assert.Nil(t, mine.Grade)

	subs, err := instructor.Assignments.Submissions(ctx, assignmentID)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, instructor.Assignments.Grade(ctx, subs[0].ID, 92.5, "good work"))
	mine, err = student.Assignments.MySubmission(ctx, assignmentID)
	require.NoError(t, err)
	require.NotNil(t, mine.Grade)
	assert.Equal(t, 92.5, *mine.Grade)
	assert.Equal(t, "good work", mine.Feedback)

	require.NoError(t, student.Assignments.DeleteSubmission(ctx, subs[0].ID))
	require.NoError(t, instructor.Assignments.Delete(ctx, assignmentID))
}

func TestChatHistoryKeyedByCounterpart(t *testing.T) {
	client, srv := newClient(t, types.RoleInstructor, "+15551234567")
	ctx := context.Background()

	srv.SeedMessage(types.ServerMessage{
		SenderType:      types.RoleStudent,
		StudentEmail:    "alice@example.com",
		InstructorPhone: "+15551234567",
		Message:         "hello",
		Timestamp:       time.Now().UTC(),
	})
	srv.SeedMessage(types.ServerMessage{
		SenderType:      types.RoleStudent,
		StudentEmail:    "bob@school.edu",
		InstructorPhone: "+15551234567",
		Message:         "other conversation",
		Timestamp:       time.Now().UTC(),
	})

	history, err := client.Chat.History(ctx, types.Contact{
		Role:  types.RoleStudent,
		Email: "alice@example.com",
	})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Message)
}

func TestListInstructorsForStudent(t *testing.T) {
	client, _ := newClient(t, types.RoleStudent, "alice@example.com")

	instructors, err := client.Auth.ListInstructors(context.Background())
	require.NoError(t, err)
	require.Len(t, instructors, 1)
	assert.Equal(t, "Dr. Pham", instructors[0].DisplayName)
	assert.Equal(t, "+15551234567", instructors[0].PhoneNumber)
	assert.Equal(t, types.RoleInstructor, instructors[0].Role)
}

func TestEnvelopeRejectionSurfacesErrRejected(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "duplicate email",
		})
	}))
	t.Cleanup(backend.Close)

	client := api.New(transport.New(backend.URL, staticToken("tok")))
	err := client.Students.Add(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrRejected))
	assert.Contains(t, err.Error(), "duplicate email")
}
