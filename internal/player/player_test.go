package player_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/susu3304/chipledger/internal/memstore"
	"github.com/susu3304/chipledger/internal/player"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := player.NewService(memstore.New()).WithHashCost(bcrypt.MinCost)

	p, err := svc.Register(ctx, "akshay", "", "hunter2", " 555-0100 ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.Name != "akshay" || p.Phone != "555-0100" || p.Guest || p.PasswordHash == "hunter2" {
		t.Fatalf("player = %+v", p)
	}
	if _, err := svc.Register(ctx, "akshay", "A", "x", ""); !errors.Is(err, player.ErrPlayerExists) {
		t.Fatalf("duplicate: err = %v, want ErrPlayerExists", err)
	}
	if _, err := svc.Register(ctx, "", "A", "x", ""); !errors.Is(err, player.ErrInvalidPlayer) {
		t.Fatalf("blank id: err = %v, want ErrInvalidPlayer", err)
	}
	if _, err := svc.Register(ctx, "b", "B", "", ""); !errors.Is(err, player.ErrInvalidPlayer) {
		t.Fatalf("blank password: err = %v, want ErrInvalidPlayer", err)
	}

	if _, err := svc.Authenticate(ctx, "akshay", "hunter2"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "akshay", "wrong"); !errors.Is(err, player.ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(ctx, "ghost", "x"); !errors.Is(err, player.ErrPlayerNotFound) {
		t.Fatalf("unknown: err = %v, want ErrPlayerNotFound", err)
	}
}

func TestGuestCannotLogIn(t *testing.T) {
	ctx := context.Background()
	svc := player.NewService(memstore.New()).WithHashCost(bcrypt.MinCost)

	g, created, err := svc.GetOrCreate(ctx, "walkin", "")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !created || !g.Guest || g.Name != "Guest_walkin" {
		t.Fatalf("guest = %+v created=%t", g, created)
	}
	if _, created, err = svc.GetOrCreate(ctx, "walkin", "Other"); err != nil || created {
		t.Fatalf("second call: created=%t err=%v", created, err)
	}
	if _, err := svc.Authenticate(ctx, "walkin", ""); !errors.Is(err, player.ErrInvalidCredentials) {
		t.Fatalf("guest login: err = %v, want ErrInvalidCredentials", err)
	}
}
