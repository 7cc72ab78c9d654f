package venue

import (
	"context"
	"errors"
	"testing"
)

type fakeCredStore struct {
	creds map[string]Credential
}

func (f *fakeCredStore) GetCredential(ctx context.Context, user, venueName string) (Credential, error) {
	c, ok := f.creds[user+"|"+venueName]
	if !ok {
		return Credential{}, ErrNoCredentials
	}
	return c, nil
}

type stubAdapter struct{ Adapter }

func TestResolveCachesAdapter(t *testing.T) {
	store := &fakeCredStore{creds: map[string]Credential{
		"alice|paper": {Venue: "paper", Version: 1},
	}}
	builds := 0
	reg := NewRegistry(store, 4)
	reg.RegisterFactory("paper", func(cred Credential) (Adapter, error) {
		builds++
		return stubAdapter{}, nil
	})

	ctx := context.Background()
	if _, err := reg.Resolve(ctx, "alice", "paper"); err != nil {
		t.Fatalf("Resolve 1: %v", err)
	}
	if _, err := reg.Resolve(ctx, "alice", "paper"); err != nil {
		t.Fatalf("Resolve 2: %v", err)
	}
	if builds != 1 {
		t.Fatalf("builds = %d, want 1 (cached)", builds)
	}
}

func TestResolveNoCredentials(t *testing.T) {
	store := &fakeCredStore{creds: map[string]Credential{}}
	reg := NewRegistry(store, 4)
	_, err := reg.Resolve(context.Background(), "bob", "binance")
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}

func TestCredentialRotationInvalidatesCache(t *testing.T) {
	store := &fakeCredStore{creds: map[string]Credential{
		"alice|paper": {Venue: "paper", Version: 1},
	}}
	builds := 0
	reg := NewRegistry(store, 4)
	reg.RegisterFactory("paper", func(cred Credential) (Adapter, error) {
		builds++
		return stubAdapter{}, nil
	})
	ctx := context.Background()
	reg.Resolve(ctx, "alice", "paper")

	store.creds["alice|paper"] = Credential{Venue: "paper", Version: 2}
	reg.Resolve(ctx, "alice", "paper")
	if builds != 2 {
		t.Fatalf("builds = %d, want 2 after rotation", builds)
	}
}

func TestEvictionRespectsCapacity(t *testing.T) {
	store := &fakeCredStore{creds: map[string]Credential{
		"u1|paper": {Venue: "paper", Version: 1},
		"u2|paper": {Venue: "paper", Version: 1},
		"u3|paper": {Venue: "paper", Version: 1},
	}}
	reg := NewRegistry(store, 2)
	reg.RegisterFactory("paper", func(cred Credential) (Adapter, error) {
		return stubAdapter{}, nil
	})
	ctx := context.Background()
	reg.Resolve(ctx, "u1", "paper")
	reg.Resolve(ctx, "u2", "paper")
	reg.Resolve(ctx, "u3", "paper")
	if len(reg.cache) > 2 {
		t.Fatalf("cache size = %d, want <= 2", len(reg.cache))
	}
}
