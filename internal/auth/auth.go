// Package auth resolves the caller of an API request and what they may do.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/tutor/internal/config"
)

type UserType string

const (
	UserGuest   UserType = "guest"
	UserRegular UserType = "regular"
)

// ParseUserType defaults unknown or empty values to regular.
func ParseUserType(s string) UserType {
	if UserType(strings.ToLower(strings.TrimSpace(s))) == UserGuest {
		return UserGuest
	}
	return UserRegular
}

type User struct {
	ID   string   `json:"id"`
	Type UserType `json:"type"`
}

const (
	// GuestCookie carries a guest's stable id between requests.
	GuestCookie = "tutor_guest"

	guestPrefix    = "guest-"
	guestCookieAge = 365 * 24 * time.Hour
)

// Authenticator resolves bearer tokens from configuration and, when guests
// are allowed, gives token-less callers a cookie-backed guest identity.
type Authenticator struct {
	tokens       []tokenUser
	allowGuests  bool
	cookieSecure bool
}

type tokenUser struct {
	token []byte
	user  User
}

func New(cfg config.AuthConfig) (*Authenticator, error) {
	a := &Authenticator{allowGuests: cfg.AllowGuests, cookieSecure: cfg.CookieSecure}
	for i, t := range cfg.Tokens {
		token := strings.TrimSpace(t.Token)
		if token == "" {
			return nil, fmt.Errorf("auth token %d: empty token", i)
		}
		userID := strings.TrimSpace(t.UserID)
		if userID == "" {
			return nil, fmt.Errorf("auth token %d: user_id is required", i)
		}
		if strings.HasPrefix(userID, guestPrefix) {
			return nil, fmt.Errorf("auth token %d: user_id must not start with %q", i, guestPrefix)
		}
		a.tokens = append(a.tokens, tokenUser{
			token: []byte(token),
			user:  User{ID: userID, Type: ParseUserType(t.Type)},
		})
	}
	return a, nil
}

// GuestsAllowed reports whether token-less callers get a guest identity.
func (a *Authenticator) GuestsAllowed() bool {
	return a.allowGuests
}

// Authenticate returns the caller, or nil when the request carries no valid
// credentials. A new guest gets its cookie set on w.
func (a *Authenticator) Authenticate(w http.ResponseWriter, r *http.Request) *User {
	if token, ok := bearerToken(r); ok {
		for _, t := range a.tokens {
			if subtle.ConstantTimeCompare(t.token, []byte(token)) == 1 {
				u := t.user
				return &u
			}
		}
		return nil
	}

	if !a.allowGuests {
		return nil
	}
	if c, err := r.Cookie(GuestCookie); err == nil && validGuestID(c.Value) {
		return &User{ID: c.Value, Type: UserGuest}
	}
	if w == nil {
		return nil
	}

	id := guestPrefix + uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     GuestCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(guestCookieAge / time.Second),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return &User{ID: id, Type: UserGuest}
}

func bearerToken(r *http.Request) (string, bool) {
	value := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(value, prefix)), true
}

func validGuestID(id string) bool {
	rest, ok := strings.CutPrefix(id, guestPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

type ctxKey struct{}

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored by WithUser, or nil.
func FromContext(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}
