package auth

import "context"

type contextKey string

const actorContextKey contextKey = "auth_actor"

// Actor is the authenticated caller. FacultyID is the faculty_profiles.id of
// the caller, nil when the user has no faculty profile.
type Actor struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	FacultyID   *int64 `json:"faculty_profile_id,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
	IsStaff     bool   `json:"is_staff"`
	Source      string `json:"source"`
}

func (a *Actor) Authenticated() bool {
	return a != nil && a.UserID > 0
}

// IsFaculty reports whether the actor's faculty profile is id.
func (a *Actor) IsFaculty(id *int64) bool {
	if !a.Authenticated() || a.FacultyID == nil || id == nil {
		return false
	}
	return *a.FacultyID == *id
}

func CurrentActor(ctx context.Context) (*Actor, bool) {
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok || a == nil {
		return nil, false
	}
	return a, true
}

// ContextWithActor injects an authenticated actor into context.
// Useful for tests and the CLI.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}
