package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidHash  = errors.New("token hash is not a bcrypt hash")
)

// TokenEntry binds a bcrypt token hash to an actor id.
type TokenEntry struct {
	ActorID string
	Hash    string
}

// TokenAuth maps bearer tokens to actor ids. Tokens are stored only as bcrypt
// hashes; verified tokens are remembered by their SHA-256 digest so repeated
// requests skip the bcrypt comparison.
type TokenAuth struct {
	entries []TokenEntry

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]string
}

// NewTokenAuth validates every hash and returns the authenticator.
func NewTokenAuth(entries []TokenEntry) (*TokenAuth, error) {
	for i, e := range entries {
		if e.ActorID == "" {
			return nil, fmt.Errorf("token %d: actor id is required", i)
		}
		if _, err := bcrypt.Cost([]byte(e.Hash)); err != nil {
			return nil, fmt.Errorf("token %d (%s): %w", i, e.ActorID, ErrInvalidHash)
		}
	}
	return &TokenAuth{
		entries:  append([]TokenEntry(nil), entries...),
		verified: make(map[[sha256.Size]byte]string),
	}, nil
}

// Authenticate returns the actor owning token.
func (a *TokenAuth) Authenticate(token string) (string, error) {
	if a == nil || token == "" {
		return "", ErrInvalidToken
	}
	digest := sha256.Sum256([]byte(token))

	a.mu.RLock()
	actor, ok := a.verified[digest]
	a.mu.RUnlock()
	if ok {
		return actor, nil
	}

	for _, e := range a.entries {
		if bcrypt.CompareHashAndPassword([]byte(e.Hash), []byte(token)) == nil {
			a.mu.Lock()
			a.verified[digest] = e.ActorID
			a.mu.Unlock()
			return e.ActorID, nil
		}
	}
	return "", ErrInvalidToken
}

// Len returns the number of configured tokens.
func (a *TokenAuth) Len() int {
	if a == nil {
		return 0
	}
	return len(a.entries)
}

// HashToken returns the bcrypt hash to put in the config for token.
func HashToken(token string, cost int) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// GenerateToken returns a random URL-safe token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
