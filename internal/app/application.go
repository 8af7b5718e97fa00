package app

import (
	"context"
	"fmt"
	"log"

	"classboard/internal/api"
	"classboard/internal/chat"
	"classboard/internal/config"
	"classboard/internal/guard"
	"classboard/internal/realtime"
	"classboard/internal/token"
	"classboard/internal/transport"
	"classboard/pkg/types"
)

// Application coordinates all client components.
// Clean dependency injection pattern with proper initialization order.
type Application struct {
	config   *config.Config
	store    *token.SQLiteStore
	api      *api.Client
	realtime *realtime.Manager
	guard    *guard.Guard
	routes   *RouteTable

	sweepCancel context.CancelFunc
}

// NewApplication creates a new application instance with all components
// initialized. Component initialization follows strict dependency order:
// Store → Transport → API → Realtime → Guard.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Initialize the session store (foundation layer)
	store, err := token.NewSQLiteStore(cfg.Store.Path, cfg.Auth.TokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	// STEP 2: Initialize authenticated transport over the store
	httpClient := transport.New(cfg.API.BaseURL, store)

	// STEP 3: Initialize the REST client surface
	apiClient := api.New(httpClient)

	// STEP 4: Initialize the realtime connection manager
	manager := realtime.NewManager(realtime.Options{
		URL:               cfg.Socket.URL,
		Path:              cfg.Socket.Path,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.Socket.ReconnectDelay,
		HandshakeTimeout:  cfg.Socket.HandshakeTimeout,
		WriteTimeout:      cfg.Socket.WriteTimeout,
	}, store)

	// STEP 5: Initialize the route guard over the same store
	routeGuard := guard.New(store)

	return &Application{
		config:   cfg,
		store:    store,
		api:      apiClient,
		realtime: manager,
		guard:    routeGuard,
		routes:   NewRouteTable(),
	}, nil
}

// API exposes the REST client surface.
func (app *Application) API() *api.Client {
	return app.api
}

// Store exposes the session store.
func (app *Application) Store() token.Store {
	return app.store
}

// Realtime exposes the websocket connection manager.
func (app *Application) Realtime() *realtime.Manager {
	return app.realtime
}

// Resolve gates a route path. Public routes always render; role-gated
// routes go through the guard, which evicts dead sessions as a side
// effect.
func (app *Application) Resolve(path string) guard.Decision {
	required, public := app.routes.Match(path)
	if public {
		return guard.Allow
	}
	return app.guard.Check(required)
}

// VerifyInstructorCode exchanges a phone number and access code for a
// session, persisting the token and role flag on success.
func (app *Application) VerifyInstructorCode(ctx context.Context, phoneNumber, accessCode string) error {
	result, err := app.api.Auth.VerifyAccessCode(ctx, phoneNumber, accessCode)
	if err != nil {
		return err
	}
	return app.establishSession(result, types.RoleInstructor)
}

// StudentLogin signs a student in with email and password.
func (app *Application) StudentLogin(ctx context.Context, email, password string) error {
	result, err := app.api.Auth.StudentLogin(ctx, email, password)
	if err != nil {
		return err
	}
	return app.establishSession(result, types.RoleStudent)
}

// VerifyStudentCode exchanges a student email and access code for a
// session.
func (app *Application) VerifyStudentCode(ctx context.Context, email, accessCode string) error {
	result, err := app.api.Auth.ValidateStudentAccessCode(ctx, email, accessCode)
	if err != nil {
		return err
	}
	return app.establishSession(result, types.RoleStudent)
}

func (app *Application) establishSession(result *api.AuthResult, fallback types.Role) error {
	if !result.Success || result.AccessToken == "" {
		return fmt.Errorf("%w: login", api.ErrRejected)
	}

	role := result.UserType
	if !role.Valid() {
		role = fallback
	}

	if err := app.store.SetToken(result.AccessToken); err != nil {
		return err
	}
	if err := app.store.SetRole(role); err != nil {
		return err
	}
	log.Printf("session established role=%s", role)
	return nil
}

// Logout tears down the realtime connection and clears all session
// state. Safe to call with no session.
func (app *Application) Logout() error {
	app.realtime.Disconnect()
	return app.store.Clear()
}

// OpenChat wires the chat surface for the current session: contact
// directory for the counterpart role, message timeline, and a live
// connection with push listeners registered. notify receives non-fatal
// chat errors.
func (app *Application) OpenChat(ctx context.Context, notify func(error)) (*chat.Directory, *chat.Timeline, error) {
	tok, err := app.store.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok == "" {
		return nil, nil, chat.ErrNoSession
	}
	role, err := app.store.Role()
	if err != nil {
		return nil, nil, err
	}
	if !role.Valid() {
		return nil, nil, types.ErrInvalidRole
	}

	var source chat.ContactSource
	if role == types.RoleInstructor {
		source = contactSourceFunc(app.api.Students.Contacts)
	} else {
		source = contactSourceFunc(app.api.Auth.ListInstructors)
	}

	directory := chat.NewDirectory(source)
	timeline := chat.NewTimeline(role, app.api.Chat, app.realtime, app.store, notify)

	if _, err := app.realtime.Connect(ctx, tok); err != nil {
		return nil, nil, fmt.Errorf("failed to connect chat: %w", err)
	}
	timeline.Subscribe()
	// a background redial replaces the channel and its listener set;
	// resubscribing keeps the live feed alive across transport drops
	app.realtime.OnReconnect(timeline.Subscribe)

	if err := directory.Load(ctx); err != nil {
		// the chat surface still renders with an empty contact list
		if notify != nil {
			notify(err)
		} else {
			log.Printf("chat: %v", err)
		}
	}

	return directory, timeline, nil
}

// Start begins background session supervision. When a session exists,
// the expiry sweep runs until the session dies or Stop is called.
func (app *Application) Start(ctx context.Context) error {
	role, err := app.store.Role()
	if err != nil {
		return err
	}
	if !app.store.IsAuthenticated() || !role.Valid() {
		log.Printf("no active session, sweep not started")
		return nil
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	app.sweepCancel = cancel
	go app.guard.Sweep(sweepCtx, role, app.config.Auth.SweepInterval, func(d guard.Decision) {
		app.realtime.Disconnect()
		log.Printf("session expired, redirecting to %s", d.Redirect())
	})

	log.Printf("session sweep started role=%s interval=%s", role, app.config.Auth.SweepInterval)
	return nil
}

// Stop gracefully shuts the client down.
// Reverse dependency order: Sweep → Realtime → Store.
func (app *Application) Stop() error {
	if app.sweepCancel != nil {
		app.sweepCancel()
		app.sweepCancel = nil
	}

	app.realtime.Disconnect()

	if err := app.store.Close(); err != nil {
		log.Printf("session store shutdown error: %v", err)
		return err
	}
	return nil
}

// contactSourceFunc adapts a listing method to the chat.ContactSource
// interface.
type contactSourceFunc func(ctx context.Context) ([]types.Contact, error)

func (f contactSourceFunc) Contacts(ctx context.Context) ([]types.Contact, error) {
	return f(ctx)
}
