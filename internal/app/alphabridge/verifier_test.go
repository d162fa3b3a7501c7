package alphabridge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
)

var errAccountUnreachable = errors.New("account service unreachable")

type mockAccountService struct {
	profile alphabridge.AccountProfile
	err     error
}

func (m mockAccountService) Profile(context.Context, string) (alphabridge.AccountProfile, error) {
	return m.profile, m.err
}

func TestProfileVerifier_Verify(t *testing.T) {
	accountID := uuid.Must(uuid.NewV4())

	tt := []struct {
		name        string
		accountName string
		accountErr  error
		claimedName string
		wantErr     error
	}{
		{
			name:        "ExactMatch",
			accountName: "Alice",
			claimedName: "Alice",
		},
		{
			name:        "NameMismatch",
			accountName: "Bob",
			claimedName: "Alice",
			wantErr:     alphabridge.ErrNameMismatch,
		},
		{
			name:        "CaseSensitiveMismatch",
			accountName: "alice",
			claimedName: "Alice",
			wantErr:     alphabridge.ErrNameMismatch,
		},
		{
			name:        "ProviderFailure",
			accountErr:  errAccountUnreachable,
			claimedName: "Alice",
			wantErr:     errAccountUnreachable,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			cache := alphabridge.NewMemoryProfileCache()
			verifier := &alphabridge.ProfileVerifier{
				Service: mockAccountService{
					profile: alphabridge.AccountProfile{
						ID:   accountID,
						Name: tc.accountName,
					},
					err: tc.accountErr,
				},
				Cache: cache,
			}

			profile, err := verifier.Verify(context.Background(), "token", tc.claimedName)

			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got %v; want %v", err, tc.wantErr)
				}
				if _, err := cache.Get(context.Background(), tc.claimedName); !errors.Is(err, alphabridge.ErrProfileNotFound) {
					t.Error("failed verification must not populate the cache")
				}
				return
			}

			if err != nil {
				t.Fatal(err)
			}
			if profile.Username != tc.claimedName || profile.ID != accountID {
				t.Errorf("unexpected profile %+v", profile)
			}

			cached, err := cache.Get(context.Background(), tc.claimedName)
			if err != nil {
				t.Fatalf("verification did not populate the cache: %v", err)
			}
			if cached != profile {
				t.Errorf("cached %+v; want %+v", cached, profile)
			}
		})
	}
}

func TestProfileVerifier_CacheSupersedes(t *testing.T) {
	cache := alphabridge.NewMemoryProfileCache()
	accountID := uuid.Must(uuid.NewV4())

	for _, skinURL := range []string{
		"https://textures.example.com/1.png",
		"https://textures.example.com/2.png",
	} {
		verifier := &alphabridge.ProfileVerifier{
			Service: mockAccountService{
				profile: alphabridge.AccountProfile{
					ID:      accountID,
					Name:    "Alice",
					SkinURL: skinURL,
				},
			},
			Cache: cache,
		}
		if _, err := verifier.Verify(context.Background(), "token", "Alice"); err != nil {
			t.Fatal(err)
		}
	}

	cached, err := cache.Get(context.Background(), "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if cached.SkinURL != "https://textures.example.com/2.png" {
		t.Errorf("cache holds %q; want the most recent verification result", cached.SkinURL)
	}
}
