package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailUnknown       = errors.New("email does not exist")
	ErrInvalidToken       = errors.New("invalid token")
	ErrEmptyField         = errors.New("missing required field")
)

const defaultBio = "Hey, I am using chat-sync"

// Manager owns credentials, sessions tokens and the process-wide signed-in
// identity. Components that must react to sign-in/sign-out register through
// OnIdentityChange.
type Manager struct {
	store    store.Store
	signKey  []byte
	tokenTTL time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	current   string
	nextToken int
	listeners map[int]func(userID string)
}

func NewManager(st store.Store, signKey []byte, tokenTTL time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		store:     st,
		signKey:   signKey,
		tokenTTL:  tokenTTL,
		log:       log,
		listeners: map[int]func(string){},
	}
}

// Signup registers a new user: profile document with the default bio, private
// credentials record with a bcrypt hash, and an empty roster document. The
// username is lowercase-normalized and must be unique.
func (m *Manager) Signup(ctx context.Context, username, email, password string) (models.UserProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return models.UserProfile{}, ErrEmptyField
	}

	if taken, err := m.exists(ctx, "username", username); err != nil {
		return models.UserProfile{}, err
	} else if taken {
		return models.UserProfile{}, ErrUsernameTaken
	}
	if taken, err := m.exists(ctx, "email", email); err != nil {
		return models.UserProfile{}, err
	} else if taken {
		return models.UserProfile{}, ErrEmailTaken
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("generate user id: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	profile := models.UserProfile{
		ID:       id.String(),
		Username: username,
		Email:    email,
		Bio:      defaultBio,
		LastSeen: time.Now().UnixMilli(),
	}

	if err := m.store.Set(ctx, "users", profile.ID, profile); err != nil {
		return models.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}
	if err := m.store.Set(ctx, "credentials", profile.ID, models.Credentials{
		UserID:       profile.ID,
		Email:        email,
		PasswordHash: string(hash),
	}); err != nil {
		return models.UserProfile{}, fmt.Errorf("store credentials: %w", err)
	}
	if err := m.store.Set(ctx, "rosters", profile.ID, models.RosterDocument{Entries: []models.RosterEntry{}}); err != nil {
		return models.UserProfile{}, fmt.Errorf("create roster: %w", err)
	}

	return profile, nil
}

// Login verifies email and password, makes the user the current identity and
// returns a signed session token. Lookup failures are masked as invalid
// credentials to hide account existence.
func (m *Manager) Login(ctx context.Context, email, password string) (string, models.UserProfile, error) {
	profile, err := m.profileByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", models.UserProfile{}, ErrInvalidCredentials
	}

	doc, err := m.store.Get(ctx, "credentials", profile.ID)
	if err != nil {
		return "", models.UserProfile{}, ErrInvalidCredentials
	}
	var creds models.Credentials
	if err := doc.Decode(&creds); err != nil {
		return "", models.UserProfile{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)) != nil {
		return "", models.UserProfile{}, ErrInvalidCredentials
	}

	token, err := m.IssueToken(profile.ID)
	if err != nil {
		return "", models.UserProfile{}, err
	}

	m.setIdentity(profile.ID)
	return token, profile, nil
}

// Logout clears the current identity.
func (m *Manager) Logout() {
	m.setIdentity("")
}

// RequestPasswordReset verifies the email belongs to a registered user.
// Reset delivery itself is handled outside this system.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmptyField
	}
	if _, err := m.profileByEmail(ctx, email); err != nil {
		return err
	}
	m.log.Info("password reset requested", zap.String("email", email))
	return nil
}

// CurrentIdentity returns the signed-in user id, or empty when signed out.
func (m *Manager) CurrentIdentity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnIdentityChange registers a listener called with the new user id on every
// sign-in and with an empty id on sign-out. Returns an idempotent cancel.
func (m *Manager) OnIdentityChange(cb func(userID string)) func() {
	m.mu.Lock()
	token := m.nextToken
	m.nextToken++
	m.listeners[token] = cb
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, token)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) setIdentity(userID string) {
	m.mu.Lock()
	if m.current == userID {
		m.mu.Unlock()
		return
	}
	m.current = userID
	listeners := make([]func(string), 0, len(m.listeners))
	for _, cb := range m.listeners {
		listeners = append(listeners, cb)
	}
	m.mu.Unlock()

	for _, cb := range listeners {
		cb(userID)
	}
}

// IssueToken creates a signed HS256 JWT for the given subject.
func (m *Manager) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signKey)
}

// ValidateToken parses and verifies a session token and returns its subject.
func (m *Manager) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.signKey, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

func (m *Manager) profileByEmail(ctx context.Context, email string) (models.UserProfile, error) {
	docs, err := m.store.Query(ctx, "users", "email", email)
	if err != nil {
		return models.UserProfile{}, err
	}
	if len(docs) == 0 {
		return models.UserProfile{}, ErrEmailUnknown
	}
	var profile models.UserProfile
	if err := docs[0].Decode(&profile); err != nil {
		return models.UserProfile{}, err
	}
	if profile.ID == "" {
		profile.ID = docs[0].ID
	}
	return profile, nil
}

func (m *Manager) exists(ctx context.Context, field, value string) (bool, error) {
	docs, err := m.store.Query(ctx, "users", field, value)
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}
