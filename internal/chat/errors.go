package chat

import "errors"

// Chat error types. All are local, user-visible conditions; none are
// fatal to the session.
var (
	ErrNoSession       = errors.New("no authentication token found")
	ErrReconnectFailed = errors.New("failed to reconnect to chat server")
	ErrSendFailed      = errors.New("failed to send message")
	ErrChat            = errors.New("chat error")
)
