package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndResolve(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Phone: "+15550001111", PIN: "4321"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Verified {
		t.Fatal("expected new user to start unverified")
	}

	resolved, err := svc.ResolveContact(ctx, "+15550001111")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, resolved.ID)
	}
}

func TestRegisterRejectsWeakCredentials(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Phone: "123", PIN: "4321"}); err == nil {
		t.Fatal("expected short phone to be rejected")
	}
	if _, err := svc.Register(ctx, Credentials{Phone: "+15550001111", PIN: "12"}); err == nil {
		t.Fatal("expected short PIN to be rejected")
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Phone: "+15550001111", PIN: "4321"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Phone: "+15550001111", PIN: "9876"}); !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected ErrPhoneTaken, got %v", err)
	}
}

func TestVerifiedTracksMark(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	user, err := svc.Register(ctx, Credentials{Phone: "+15550001111", PIN: "4321"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	verified, err := svc.Verified(ctx, user.ID)
	if err != nil {
		t.Fatalf("verified: %v", err)
	}
	if verified {
		t.Fatal("expected unverified before mark")
	}

	if err := svc.MarkVerified(ctx, user.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	verified, err = svc.Verified(ctx, user.ID)
	if err != nil {
		t.Fatalf("verified: %v", err)
	}
	if !verified {
		t.Fatal("expected verified after mark")
	}
}
