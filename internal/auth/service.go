// Package auth issues and validates the bearer tokens for the API.
// Users live in memory next to the rest of the simulation state.
package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	issuer string
	secret []byte
	ttl    time.Duration

	mu      sync.RWMutex
	byEmail map[string]*record
	byID    map[string]*record
}

type record struct {
	user User
	hash []byte
}

func NewService(issuer string, secret []byte, ttl time.Duration) *Service {
	return &Service{
		issuer:  issuer,
		secret:  secret,
		ttl:     ttl,
		byEmail: make(map[string]*record),
		byID:    make(map[string]*record),
	}
}

func (s *Service) Register(email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, errors.New("email and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return User{}, errors.New("email already registered")
	}
	rec := &record{
		user: User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()},
		hash: hash,
	}
	s.byEmail[email] = rec
	s.byID[rec.user.ID] = rec
	return rec.user, nil
}

func (s *Service) Login(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	rec, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.signToken(rec.user.ID)
}

func (s *Service) GetUser(userID string) (User, error) {
	s.mu.RLock()
	rec, ok := s.byID[userID]
	s.mu.RUnlock()
	if !ok {
		return User{}, errors.New("user not found")
	}
	return rec.user, nil
}

func (s *Service) signToken(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Issuer != s.issuer {
		return "", errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return "", errors.New("invalid subject")
	}
	return claims.Subject, nil
}
