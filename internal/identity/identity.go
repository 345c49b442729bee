package identity

import (
	"errors"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/youuungh/sns-chat-go/internal/domain"
	"github.com/youuungh/sns-chat-go/pkg/log"
)

var (
	ErrNoToken      = errors.New("identity: no token stored")
	ErrInvalidToken = errors.New("identity: invalid token")
)

// Claims are the identity claims the backend puts in its access tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// TokenStore holds the current access token. Invalidate is called as a side
// effect of unauthorized / user-not-found responses from the backend.
type TokenStore interface {
	Token() (string, error)
	Set(token string)
	Invalidate()
}

// MemoryTokenStore is the in-process TokenStore.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (s *MemoryTokenStore) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

func (s *MemoryTokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryTokenStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		s.token = ""
		l := log.L()
		l.Warn().Msg("local token invalidated")
	}
}

// Provider resolves the current user from the stored token's claims. The
// token is not verified locally; the backend is the verifier and the client
// only reads identity claims out of it.
type Provider struct {
	store TokenStore
}

func NewProvider(store TokenStore) *Provider {
	return &Provider{store: store}
}

func (p *Provider) CurrentUser() (domain.User, error) {
	token, err := p.store.Token()
	if err != nil {
		return domain.User{}, err
	}

	parser := jwt.NewParser()
	var claims Claims
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return domain.User{}, ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return domain.User{}, ErrInvalidToken
	}

	return domain.User{ID: userID, UserName: claims.Username}, nil
}
