package session

// Role is a user's permission level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is an immutable identity record. Role changes replace the whole value.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is a point-in-time copy of the authentication state.
type Session struct {
	User    *User
	Token   string
	Loading bool
}

// Authenticated reports whether both user and token are present.
func (s Session) Authenticated() bool {
	return s.User != nil && s.Token != ""
}

// EventType names a session lifecycle event.
type EventType string

const (
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailure       EventType = "login_failure"
	EventSignupSuccess      EventType = "signup_success"
	EventSignupFailure      EventType = "signup_failure"
	EventLogout             EventType = "logout"
	EventRehydrated         EventType = "session_rehydrated"
	EventRehydrateFailed    EventType = "session_rehydrate_failed"
	EventSessionInvalidated EventType = "session_invalidated"
	EventUserUpdated        EventType = "user_updated"
)

// Event describes one lifecycle transition.
type Event struct {
	Type   EventType
	UserID string
	Email  string
	Err    error
}

type authResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type meResponse struct {
	User *User `json:"user"`
}
