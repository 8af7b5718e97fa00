// Package apitest runs an in-memory classroom backend for tests: the
// REST surface the client talks to plus a websocket broker for chat.
// State lives in maps behind one mutex; nothing persists.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"classboard/internal/api"
	"classboard/pkg/types"
)

type session struct {
	role  types.Role
	email string
	phone string
	name  string
}

// Server is the fake backend. Seed state through the exported helpers,
// point the client at URL(), and inspect state after the fact.
type Server struct {
	httpServer *httptest.Server
	secret     []byte
	tokenTTL   time.Duration

	mu          sync.Mutex
	accessCodes map[string]string
	sessions    map[string]session
	students    map[string]api.Student
	instructors map[string]session
	lessons     map[string]*api.Lesson
	assignments map[string]*api.Assignment
	submissions map[string]*api.Submission
	messages    []types.ServerMessage
	conns       map[string]*wsClient
}

// NewServer starts the fake backend. Callers own Close.
func NewServer() *Server {
	s := &Server{
		secret:      []byte("apitest-secret"),
		tokenTTL:    15 * time.Minute,
		accessCodes: make(map[string]string),
		sessions:    make(map[string]session),
		students:    make(map[string]api.Student),
		instructors: make(map[string]session),
		lessons:     make(map[string]*api.Lesson),
		assignments: make(map[string]*api.Assignment),
		submissions: make(map[string]*api.Submission),
		conns:       make(map[string]*wsClient),
	}
	s.httpServer = httptest.NewServer(s.router())
	return s
}

// Close shuts the backend down.
func (s *Server) Close() {
	s.httpServer.Close()
}

// URL returns the backend's base URL for the REST client.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// SocketURL returns the websocket endpoint URL.
func (s *Server) SocketURL() string {
	return "ws" + s.httpServer.URL[len("http"):]
}

// SeedInstructor registers an instructor reachable at phone.
func (s *Server) SeedInstructor(name, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructors[phone] = session{role: types.RoleInstructor, phone: phone, name: name}
}

// SeedStudent registers a student on the roster.
func (s *Server) SeedStudent(name, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[email] = api.Student{ID: uuid.NewString(), Name: name, Email: email}
}

// SeedMessage injects a message into chat history.
func (s *Server) SeedMessage(msg types.ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.messages = append(s.messages, msg)
}

// IssueToken mints a signed token with the given lifetime and registers
// the session, bypassing the login flow.
func (s *Server) IssueToken(role types.Role, identity string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub": identity,
		"exp": time.Now().Add(ttl).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("apitest: sign token: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := session{role: role}
	if role == types.RoleInstructor {
		sess.phone = identity
		if in, ok := s.instructors[identity]; ok {
			sess.name = in.name
		}
	} else {
		sess.email = identity
		if st, ok := s.students[identity]; ok {
			sess.name = st.Name
		}
	}
	s.sessions[tok] = sess
	return tok
}

// DropAll severs every live websocket, simulating a transport blip.
func (s *Server) DropAll() {
	s.mu.Lock()
	dropped := s.conns
	s.conns = make(map[string]*wsClient)
	s.mu.Unlock()

	for _, c := range dropped {
		_ = c.conn.Close()
	}
}

// Online reports whether the identity key has a live socket registered.
func (s *Server) Online(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.conns[key]
	return found
}

// Messages returns a copy of the stored chat history.
func (s *Server) Messages() []types.ServerMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ServerMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/auth/instructor/login", s.handleInstructorLogin)
	r.Post("/auth/instructor/verify", s.handleInstructorVerify)
	r.Post("/auth/student/login", s.handleStudentLogin)
	r.Post("/auth/student/verify", s.handleStudentVerify)
	r.Post("/auth/setup/{token}", s.handleSetup)
	r.Get("/auth/me", s.handleMe)
	r.Get("/instructors", s.handleListInstructors)

	r.Get("/students", s.handleListStudents)
	r.Post("/students", s.handleAddStudent)
	r.Put("/students/{email}", s.handleEditStudent)
	r.Delete("/students/{email}", s.handleDeleteStudent)

	r.Get("/lessons", s.handleListLessons)
	r.Post("/lessons", s.handleCreateLesson)
	r.Post("/lessons/assign", s.handleAssignLesson)
	r.Get("/lessons/mine", s.handleMyLessons)
	r.Post("/lessons/done", s.handleLessonDone)

	r.Get("/assignments/lesson/{lessonID}", s.handleAssignmentsByLesson)
	r.Post("/assignments", s.handleCreateAssignment)
	r.Put("/assignments/{id}", s.handleUpdateAssignment)
	r.Delete("/assignments/{id}", s.handleDeleteAssignment)
	r.Get("/assignments/{id}/submissions", s.handleSubmissions)
	r.Get("/assignments/{id}/submission", s.handleMySubmission)
	r.Post("/submissions", s.handleSubmit)
	r.Put("/submissions/{id}/grade", s.handleGrade)
	r.Delete("/submissions/{id}", s.handleDeleteSubmission)

	r.Get("/chat/history", s.handleChatHistory)
	r.Get("/ws", s.handleSocket)

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func reject(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func ok(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		reject(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// authed resolves the bearer session, rejecting the request when the
// token is missing or unknown.
func (s *Server) authed(w http.ResponseWriter, r *http.Request) (session, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		reject(w, http.StatusUnauthorized, "missing bearer token")
		return session{}, false
	}

	s.mu.Lock()
	sess, found := s.sessions[header[len(prefix):]]
	s.mu.Unlock()
	if !found {
		reject(w, http.StatusUnauthorized, "unknown token")
		return session{}, false
	}
	return sess, true
}

func (s *Server) handleInstructorLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.instructors[req.PhoneNumber]; !found {
		reject(w, http.StatusNotFound, "unknown phone number")
		return
	}
	code := fmt.Sprintf("%06d", len(s.accessCodes)+100000)
	s.accessCodes[req.PhoneNumber] = code
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "accessCode": code})
}

func (s *Server) handleInstructorVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
		AccessCode  string `json:"accessCode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	code, found := s.accessCodes[req.PhoneNumber]
	s.mu.Unlock()
	if !found || code != req.AccessCode {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}

	tok := s.IssueToken(types.RoleInstructor, req.PhoneNumber, s.tokenTTL)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"userType":    types.RoleInstructor,
		"accessToken": tok,
	})
}

func (s *Server) handleStudentLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	_, found := s.students[req.Email]
	s.mu.Unlock()
	if !found || req.Password == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}

	tok := s.IssueToken(types.RoleStudent, req.Email, s.tokenTTL)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"userType":    types.RoleStudent,
		"accessToken": tok,
	})
}

func (s *Server) handleStudentVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		AccessCode string `json:"accessCode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	code, found := s.accessCodes[req.Email]
	s.mu.Unlock()
	if !found || code != req.AccessCode {
		writeJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}

	tok := s.IssueToken(types.RoleStudent, req.Email, s.tokenTTL)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"userType":    types.RoleStudent,
		"accessToken": tok,
	})
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "token") == "" {
		reject(w, http.StatusBadRequest, "missing verification token")
		return
	}
	var req api.SetupAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Password == "" {
		reject(w, http.StatusBadRequest, "incomplete account setup")
		return
	}
	ok(w, nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, authorized := s.authed(w, r)
	if !authorized {
		return
	}
	ok(w, map[string]any{"data": map[string]any{
		"name":        sess.name,
		"userType":    sess.role,
		"email":       sess.email,
		"phoneNumber": sess.phone,
	}})
}

func (s *Server) handleListInstructors(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]map[string]any, 0, len(s.instructors))
	for phone, in := range s.instructors {
		_, online := s.conns[phone]
		list = append(list, map[string]any{
			"id":          phone,
			"name":        in.name,
			"phoneNumber": phone,
			"isOnline":    online,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "instructors": list})
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]api.Student, 0, len(s.students))
	for email, st := range s.students {
		_, st.Online = s.conns[email]
		list = append(list, st)
	}
	ok(w, map[string]any{"students": list})
}

func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.students[req.Email]; exists {
		reject(w, http.StatusConflict, "student already exists")
		return
	}
	s.students[req.Email] = api.Student{ID: uuid.NewString(), Email: req.Email}
	ok(w, nil)
}

func (s *Server) handleEditStudent(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	email := chi.URLParam(r, "email")
	var req api.UpdateStudent
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, found := s.students[email]
	if !found {
		reject(w, http.StatusNotFound, "unknown student")
		return
	}
	if req.Name != "" {
		st.Name = req.Name
	}
	if req.PhoneNumber != "" {
		st.PhoneNumber = req.PhoneNumber
	}
	if req.Email != "" && req.Email != email {
		delete(s.students, email)
		st.Email = req.Email
		email = req.Email
	}
	s.students[email] = st
	ok(w, nil)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	email := chi.URLParam(r, "email")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.students[email]; !found {
		reject(w, http.StatusNotFound, "unknown student")
		return
	}
	delete(s.students, email)
	ok(w, nil)
}

func (s *Server) handleListLessons(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*api.Lesson, 0, len(s.lessons))
	for _, l := range s.lessons {
		list = append(list, l)
	}
	ok(w, map[string]any{"lessons": list})
}

func (s *Server) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	var req api.CreateLesson
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" {
		reject(w, http.StatusBadRequest, "lesson title required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.lessons[id] = &api.Lesson{ID: id, Title: req.Title, Description: req.Description}
	ok(w, nil)
}

func (s *Server) handleAssignLesson(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	var req api.AssignLesson
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lesson, found := s.lessons[req.LessonID]
	if !found {
		reject(w, http.StatusNotFound, "unknown lesson")
		return
	}
	lesson.AssignedTo = append(lesson.AssignedTo, req.StudentPhones...)
	ok(w, nil)
}

func (s *Server) handleMyLessons(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	phone := r.URL.Query().Get("phoneNumber")

	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*api.Lesson, 0)
	for _, l := range s.lessons {
		for _, assigned := range l.AssignedTo {
			if assigned == phone {
				list = append(list, l)
				break
			}
		}
	}
	ok(w, map[string]any{"lessons": list})
}

func (s *Server) handleLessonDone(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	var req struct {
		LessonID string `json:"lessonId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	lesson, found := s.lessons[req.LessonID]
	if !found {
		reject(w, http.StatusNotFound, "unknown lesson")
		return
	}
	lesson.Done = true
	ok(w, nil)
}

func (s *Server) handleAssignmentsByLesson(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	lessonID := chi.URLParam(r, "lessonID")

	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*api.Assignment, 0)
	for _, a := range s.assignments {
		if a.LessonID == lessonID {
			list = append(list, a)
		}
	}
	ok(w, map[string]any{"assignments": list, "total": len(list)})
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	var req api.CreateAssignment
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LessonID == "" || req.Title == "" {
		reject(w, http.StatusBadRequest, "lesson and title required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.assignments[id] = &api.Assignment{
		ID:          id,
		LessonID:    req.LessonID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	}
	ok(w, nil)
}

func (s *Server) handleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	id := chi.URLParam(r, "id")
	var req api.UpdateAssignment
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, found := s.assignments[id]
	if !found {
		reject(w, http.StatusNotFound, "unknown assignment")
		return
	}
	if req.Title != "" {
		a.Title = req.Title
	}
	if req.Description != "" {
		a.Description = req.Description
	}
	if req.DueDate != nil {
		a.DueDate = req.DueDate
	}
	ok(w, nil)
}

func (s *Server) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.assignments[id]; !found {
		reject(w, http.StatusNotFound, "unknown assignment")
		return
	}
	delete(s.assignments, id)
	ok(w, nil)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*api.Submission, 0)
	for _, sub := range s.submissions {
		if sub.AssignmentID == id {
			list = append(list, sub)
		}
	}
	ok(w, map[string]any{"submissions": list})
}

func (s *Server) handleMySubmission(w http.ResponseWriter, r *http.Request) {
	sess, authorized := s.authed(w, r)
	if !authorized {
		return
	}
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.submissions {
		if sub.AssignmentID == id && sub.StudentEmail == sess.email {
			ok(w, map[string]any{"submission": sub})
			return
		}
	}
	ok(w, map[string]any{"submission": nil})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, authorized := s.authed(w, r)
	if !authorized {
		return
	}
	var req struct {
		AssignmentID string `json:"assignmentId"`
		Content      string `json:"content"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.assignments[req.AssignmentID]; !found {
		reject(w, http.StatusNotFound, "unknown assignment")
		return
	}
	id := uuid.NewString()
	s.submissions[id] = &api.Submission{
		ID:           id,
		AssignmentID: req.AssignmentID,
		StudentEmail: sess.email,
		Content:      req.Content,
		SubmittedAt:  time.Now(),
	}
	ok(w, nil)
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	id := chi.URLParam(r, "id")
	var req struct {
		Grade    float64 `json:"grade"`
		Feedback string  `json:"feedback"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub, found := s.submissions[id]
	if !found {
		reject(w, http.StatusNotFound, "unknown submission")
		return
	}
	grade := req.Grade
	sub.Grade = &grade
	sub.Feedback = req.Feedback
	ok(w, nil)
}

func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if _, authorized := s.authed(w, r); !authorized {
		return
	}
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.submissions[id]; !found {
		reject(w, http.StatusNotFound, "unknown submission")
		return
	}
	delete(s.submissions, id)
	ok(w, nil)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sess, authorized := s.authed(w, r)
	if !authorized {
		return
	}

	email := r.URL.Query().Get("recipientEmail")
	phone := r.URL.Query().Get("recipientPhone")
	if sess.role == types.RoleInstructor {
		phone = sess.phone
	} else {
		email = sess.email
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]types.ServerMessage, 0)
	for _, msg := range s.messages {
		if msg.StudentEmail == email && msg.InstructorPhone == phone {
			history = append(history, msg)
		}
	}
	ok(w, map[string]any{"data": history})
}
