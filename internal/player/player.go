// Package player manages player accounts: registration, login and the guest
// placeholders created when someone is seated before signing up.
package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPlayerNotFound     = errors.New("player not found")
	ErrPlayerExists       = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("incorrect password")
	ErrInvalidPlayer      = errors.New("invalid player")
)

type Player struct {
	ID           string    `json:"user_id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone,omitempty"`
	Guest        bool      `json:"guest"`
	CreatedAt    time.Time `json:"created_at"`
}

type Store interface {
	// CreatePlayer fails with ErrPlayerExists when the id is taken.
	CreatePlayer(ctx context.Context, p Player) error
	GetPlayer(ctx context.Context, id string) (Player, error)
	// EnsurePlayer inserts p unless a player with the same id exists and
	// returns the stored record. created reports whether p was inserted.
	EnsurePlayer(ctx context.Context, p Player) (stored Player, created bool, err error)
}

type Service struct {
	store Store
	cost  int
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithHashCost lowers the bcrypt cost, mainly for tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

func (s *Service) Register(ctx context.Context, id, name, password, phone string) (Player, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Player{}, fmt.Errorf("%w: user id is required", ErrInvalidPlayer)
	}
	if password == "" {
		return Player{}, fmt.Errorf("%w: password is required", ErrInvalidPlayer)
	}
	if strings.TrimSpace(name) == "" {
		name = id
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Player{}, fmt.Errorf("hash password: %w", err)
	}
	p := Player{
		ID:           id,
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		Phone:        strings.TrimSpace(phone),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreatePlayer(ctx, p); err != nil {
		return Player{}, err
	}
	return p, nil
}

func (s *Service) Authenticate(ctx context.Context, id, password string) (Player, error) {
	if strings.TrimSpace(id) == "" {
		return Player{}, fmt.Errorf("%w: user id cannot be empty", ErrInvalidPlayer)
	}
	p, err := s.store.GetPlayer(ctx, strings.TrimSpace(id))
	if err != nil {
		return Player{}, err
	}
	if p.PasswordHash == "" {
		return Player{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return Player{}, ErrInvalidCredentials
	}
	return p, nil
}

// GetOrCreate returns the player with id, creating a guest account when none
// exists. An empty name becomes "Guest_<id>".
func (s *Service) GetOrCreate(ctx context.Context, id, name string) (Player, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Player{}, false, fmt.Errorf("%w: user id is required", ErrInvalidPlayer)
	}
	if strings.TrimSpace(name) == "" {
		name = "Guest_" + id
	}
	return s.store.EnsurePlayer(ctx, Player{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Guest:     true,
		CreatedAt: s.now().UTC(),
	})
}

func (s *Service) Get(ctx context.Context, id string) (Player, error) {
	return s.store.GetPlayer(ctx, strings.TrimSpace(id))
}
