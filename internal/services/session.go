package services

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
)

const (
	SessionCookieName = "supervisor_session"
	authorizedKey     = "authorized"

	// MinSessionTTL is the smallest expiry the session storage can honor; it
	// counts expiry in whole seconds and treats zero as "never".
	MinSessionTTL = time.Second
)

var ErrWrongPassword = errors.New("wrong password")

// SupervisorSessions maps session tokens to the supervisor authorization
// flag. Tokens travel in an HttpOnly cookie and expire after the configured
// TTL.
type SupervisorSessions struct {
	store    *session.Store
	password []byte
}

// NewSupervisorSessions builds the session store. A ttl below MinSessionTTL is
// raised to it.
func NewSupervisorSessions(password string, ttl time.Duration, secureCookie bool) *SupervisorSessions {
	ttl = max(ttl, MinSessionTTL)
	store := session.New(session.Config{
		Expiration:     ttl,
		KeyLookup:      "cookie:" + SessionCookieName,
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   secureCookie,
		CookieSameSite: "Lax",
		KeyGenerator:   uuid.NewString,
	})
	return &SupervisorSessions{store: store, password: []byte(password)}
}

// Login checks password and, on success, issues a fresh authorized session
// for the caller.
func (s *SupervisorSessions) Login(c *fiber.Ctx, password string) error {
	if subtle.ConstantTimeCompare([]byte(password), s.password) != 1 {
		return ErrWrongPassword
	}

	sess, err := s.store.Get(c)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if err := sess.Regenerate(); err != nil {
		return fmt.Errorf("regenerating session: %w", err)
	}
	sess.Set(authorizedKey, true)
	if err := sess.Save(); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (s *SupervisorSessions) Authorized(c *fiber.Ctx) bool {
	sess, err := s.store.Get(c)
	if err != nil {
		return false
	}
	ok, _ := sess.Get(authorizedKey).(bool)
	return ok
}

func (s *SupervisorSessions) Logout(c *fiber.Ctx) error {
	sess, err := s.store.Get(c)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if err := sess.Destroy(); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	return nil
}
