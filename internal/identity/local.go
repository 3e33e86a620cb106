package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"inkwell/core/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore is the credential storage the local provider needs.
type UserStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
}

type sessionStore interface {
	Save(ctx context.Context, tokenHash string, user AuthUser, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (AuthUser, error)
	Revoke(ctx context.Context, tokenHash string) error
}

// LocalProvider is an in-process identity provider: bcrypt credentials in
// the relational store, active sessions in the session cache, and a
// session-change event stream for subscribers. It tracks one current
// session, matching the single-client contract of the consistency core.
type LocalProvider struct {
	users    UserStore
	sessions sessionStore
	secret   []byte
	ttl      time.Duration

	mu      sync.Mutex
	current *Session
	subs    map[int]chan Event
	nextSub int
}

func NewLocalProvider(users UserStore, sessions *SessionCache, secret string, ttl time.Duration) *LocalProvider {
	return &LocalProvider{
		users:    users,
		sessions: sessions,
		secret:   []byte(secret),
		ttl:      ttl,
		subs:     make(map[int]chan Event),
	}
}

// SignUp registers a new account. It does not sign the user in.
func (p *LocalProvider) SignUp(ctx context.Context, email, password, fullName string) (AuthUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return AuthUser{}, errors.New("a valid email is required")
	}
	if len(password) < 8 {
		return AuthUser{}, errors.New("password must be at least 8 characters")
	}

	if _, err := p.users.GetUserByEmail(ctx, email); err == nil {
		return AuthUser{}, errors.New("email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return AuthUser{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AuthUser{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hash),
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		return AuthUser{}, fmt.Errorf("create user: %w", err)
	}
	return AuthUser{ID: user.ID, Email: user.Email, FullName: user.FullName}, nil
}

// SignIn verifies credentials, issues a session and announces it.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := p.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	session, err := p.issueSession(ctx, AuthUser{ID: user.ID, Email: user.Email, FullName: user.FullName})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = session
	p.publishLocked(Event{Type: EventSignedIn, Session: session})
	p.mu.Unlock()
	return session, nil
}

func (p *LocalProvider) issueSession(ctx context.Context, user AuthUser) (*Session, error) {
	expiresAt := time.Now().Add(p.ttl)
	token, err := IssueToken(p.secret, user, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := p.sessions.Save(ctx, HashToken(token), user, expiresAt); err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user, ExpiresAt: expiresAt}, nil
}

// CurrentSession returns the active session, or (nil, nil) when signed
// out. A session whose cache entry has expired counts as signed out.
func (p *LocalProvider) CurrentSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil {
		return nil, nil
	}

	_, err := p.sessions.Lookup(ctx, HashToken(current.Token))
	if errors.Is(err, ErrSessionNotFound) {
		p.mu.Lock()
		if p.current == current {
			p.current = nil
		}
		p.mu.Unlock()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}

// SessionFromToken validates a bearer token against the session cache.
func (p *LocalProvider) SessionFromToken(ctx context.Context, token string) (*Session, error) {
	claims, err := ParseToken(p.secret, token)
	if err != nil {
		return nil, err
	}
	user, err := p.sessions.Lookup(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if user.ID != claims.Subject {
		return nil, ErrInvalidToken
	}
	return &Session{Token: token, User: user, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Refresh re-issues the current session's token and announces the new
// session.
func (p *LocalProvider) Refresh(ctx context.Context) (*Session, error) {
	current, err := p.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrSessionNotFound
	}

	session, err := p.issueSession(ctx, current.User)
	if err != nil {
		return nil, err
	}
	if err := p.sessions.Revoke(ctx, HashToken(current.Token)); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = session
	p.publishLocked(Event{Type: EventTokenRefreshed, Session: session})
	p.mu.Unlock()
	return session, nil
}

// SignOut revokes the current session and announces the sign-out. Signing
// out when already signed out is a no-op.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	current := p.current
	p.current = nil
	p.mu.Unlock()

	if current != nil {
		if err := p.sessions.Revoke(ctx, HashToken(current.Token)); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.publishLocked(Event{Type: EventSignedOut})
	p.mu.Unlock()
	return nil
}

// Subscribe registers a session-change listener. The returned func
// releases the subscription and closes the channel.
func (p *LocalProvider) Subscribe() (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan Event, 8)
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
	}
}

// publishLocked delivers an event to every subscriber. When a subscriber
// has fallen behind, the oldest queued event is discarded to make room:
// consumers apply last-event-wins, so the newest event must always land.
func (p *LocalProvider) publishLocked(event Event) {
	for _, sub := range p.subs {
		select {
		case sub <- event:
		default:
			select {
			case <-sub:
			default:
			}
			sub <- event
		}
	}
}
