package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classboard/internal/api"
	"classboard/internal/apitest"
	"classboard/internal/chat"
	"classboard/internal/config"
	"classboard/internal/guard"
	"classboard/pkg/types"
)

func newTestApp(t *testing.T) (*Application, *apitest.Server) {
	t.Helper()

	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.SeedInstructor("Dr. Pham", "+15551234567")
	srv.SeedStudent("Alice Nguyen", "alice@example.com")

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = srv.URL()
	cfg.Socket.URL = srv.SocketURL()
	cfg.Socket.Path = "/ws"
	cfg.Socket.ReconnectDelay = 10 * time.Millisecond
	cfg.Auth.SweepInterval = 10 * time.Millisecond
	cfg.Store.Path = filepath.Join(t.TempDir(), "session.db")

	application, err := NewApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Stop() })
	return application, srv
}

func loginInstructor(t *testing.T, application *Application) {
	t.Helper()
	ctx := context.Background()
	code, err := application.API().Auth.CreateAccessCode(ctx, "+15551234567")
	require.NoError(t, err)
	require.NoError(t, application.VerifyInstructorCode(ctx, "+15551234567", code))
}

func TestVerifyInstructorCodeEstablishesSession(t *testing.T) {
	application, _ := newTestApp(t)
	loginInstructor(t, application)

	assert.True(t, application.Store().IsAuthenticated())
	role, err := application.Store().Role()
	require.NoError(t, err)
	assert.Equal(t, types.RoleInstructor, role)

	assert.Equal(t, guard.Allow, application.Resolve("/instructor"))
	assert.Equal(t, guard.Allow, application.Resolve("/instructor/lessons"))
	assert.Equal(t, guard.Allow, application.Resolve("/"))
	// wrong dashboard for the session's role
	assert.Equal(t, guard.RedirectHome, application.Resolve("/student"))
}

func TestResolveWithoutSessionRedirectsToLogin(t *testing.T) {
	application, _ := newTestApp(t)

	assert.Equal(t, guard.Allow, application.Resolve("/"))
	assert.Equal(t, guard.Allow, application.Resolve("/login"))
	assert.Equal(t, guard.RedirectLogin, application.Resolve("/instructor"))
	assert.Equal(t, guard.RedirectLogin, application.Resolve("/student"))
}

func TestExpiredClaimsEvictedOnResolve(t *testing.T) {
	application, srv := newTestApp(t)

	tok := srv.IssueToken(types.RoleInstructor, "+15551234567", -time.Minute)
	require.NoError(t, application.store.SetToken(tok))
	require.NoError(t, application.store.SetRole(types.RoleInstructor))

	assert.Equal(t, guard.RedirectLogin, application.Resolve("/instructor"))
	assert.False(t, application.Store().IsAuthenticated())
}

func TestStudentLoginRejected(t *testing.T) {
	application, _ := newTestApp(t)

	err := application.StudentLogin(context.Background(), "alice@example.com", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrRejected))
	assert.False(t, application.Store().IsAuthenticated())
}

func TestStudentLoginEstablishesSession(t *testing.T) {
	application, _ := newTestApp(t)

	require.NoError(t, application.StudentLogin(context.Background(), "alice@example.com", "secret"))
	role, err := application.Store().Role()
	require.NoError(t, err)
	assert.Equal(t, types.RoleStudent, role)
	assert.Equal(t, guard.Allow, application.Resolve("/student"))
}

func TestLogoutClearsSession(t *testing.T) {
	application, _ := newTestApp(t)
	loginInstructor(t, application)

	require.NoError(t, application.Logout())
	assert.False(t, application.Store().IsAuthenticated())
	assert.Equal(t, guard.RedirectLogin, application.Resolve("/instructor"))
}

func TestOpenChatWithoutSession(t *testing.T) {
	application, _ := newTestApp(t)

	_, _, err := application.OpenChat(context.Background(), nil)
	assert.ErrorIs(t, err, chat.ErrNoSession)
}

func TestOpenChatEndToEnd(t *testing.T) {
	application, srv := newTestApp(t)
	loginInstructor(t, application)

	srv.SeedMessage(types.ServerMessage{
		SenderType:      types.RoleStudent,
		StudentEmail:    "alice@example.com",
		InstructorPhone: "+15551234567",
		FromName:        "Alice Nguyen",
		Message:         "hello",
		Timestamp:       time.Now().UTC(),
	})

	var mu sync.Mutex
	var notified []error
	notify := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, err)
	}

	directory, timeline, err := application.OpenChat(context.Background(), notify)
	require.NoError(t, err)
	require.True(t, application.Realtime().IsConnected())

	contacts := directory.Contacts()
	require.Len(t, contacts, 1)
	assert.Equal(t, "Alice Nguyen", contacts[0].DisplayName)

	require.NoError(t, timeline.Select(context.Background(), contacts[0]))
	messages := timeline.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Body)
	assert.False(t, messages[0].Own)

	require.NoError(t, timeline.Send(context.Background(), "hi Alice"))
	assert.Eventually(t, func() bool {
		for _, m := range timeline.Messages() {
			if m.Body == "hi Alice" && m.Own {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	history := srv.Messages()
	require.Len(t, history, 2)
	assert.Equal(t, "hi Alice", history[1].Message)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, notified)
}

func TestLiveFeedSurvivesTransportDrop(t *testing.T) {
	application, srv := newTestApp(t)
	loginInstructor(t, application)

	_, timeline, err := application.OpenChat(context.Background(), nil)
	require.NoError(t, err)

	alice := types.Contact{ID: "1", DisplayName: "Alice Nguyen", Role: types.RoleStudent, Email: "alice@example.com"}
	require.NoError(t, timeline.Select(context.Background(), alice))

	studentTok := srv.IssueToken(types.RoleStudent, "alice@example.com", time.Hour)
	hasMessage := func(body string) func() bool {
		return func() bool {
			for _, m := range timeline.Messages() {
				if m.Body == body {
					return true
				}
			}
			return false
		}
	}

	sendAsStudent(t, srv, studentTok, "before drop")
	require.Eventually(t, hasMessage("before drop"), 2*time.Second, 10*time.Millisecond)

	srv.DropAll()
	// the manager redials in the background and re-registers itself
	require.Eventually(t, func() bool {
		return srv.Online("+15551234567") && application.Realtime().IsConnected()
	}, 2*time.Second, 10*time.Millisecond)

	sendAsStudent(t, srv, studentTok, "after drop")
	require.Eventually(t, hasMessage("after drop"), 2*time.Second, 10*time.Millisecond,
		"live feed went deaf after the transport drop")
}

// sendAsStudent pushes one message through the broker from the student
// side, waiting for the echo so the relay has completed before the
// connection closes.
func sendAsStudent(t *testing.T, srv *apitest.Server, token, body string) {
	t.Helper()

	query := url.Values{"token": {token}, "userType": {string(types.RoleStudent)}}
	conn, resp, err := websocket.DefaultDialer.Dial(srv.SocketURL()+"/ws?"+query.Encode(), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	data, err := json.Marshal(types.SendMessage{Message: body, RecipientPhone: "+15551234567"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(types.Frame{Event: types.EventSendMessage, Data: data}))

	var echo types.Frame
	require.NoError(t, conn.ReadJSON(&echo))
}

func TestStartSweepsExpiredSession(t *testing.T) {
	application, srv := newTestApp(t)

	tok := srv.IssueToken(types.RoleInstructor, "+15551234567", 50*time.Millisecond)
	require.NoError(t, application.store.SetToken(tok))
	require.NoError(t, application.store.SetRole(types.RoleInstructor))

	require.NoError(t, application.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return !application.Store().IsAuthenticated()
	}, 2*time.Second, 10*time.Millisecond)
}
