package store

import (
	"context"
	"testing"
	"time"

	"github.com/novaplay-gaming/crash-server/engine"
)

func TestHistoryStore_AppendAndLookup(t *testing.T) {
	hs := NewHistoryStore(t.TempDir())
	recs := []engine.RoundRecord{
		{RoundID: "r1", CrashPoint: 1.42, ServerSeed: "s1", HashedSeed: "h1", Nonce: 1, SettledAt: time.Now()},
		{RoundID: "r2", CrashPoint: 3.07, ServerSeed: "s2", HashedSeed: "h2", Nonce: 2, SettledAt: time.Now()},
	}
	for _, r := range recs {
		if err := hs.Append(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
	got, err := hs.GetByRoundID("r2")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.CrashPoint != 3.07 || got.ServerSeed != "s2" {
		t.Errorf("got %+v", got)
	}
	missing, err := hs.GetByRoundID("nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("missing round lookup = %+v, want nil", missing)
	}
}

func TestHistoryStore_EmptyLookup(t *testing.T) {
	hs := NewHistoryStore(t.TempDir())
	got, err := hs.GetByRoundID("r1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("lookup on empty store = %+v, want nil", got)
	}
}

func TestMemFailedCreditStore(t *testing.T) {
	s := NewMemFailedCreditStore()
	if err := s.Save(context.Background(), engine.FailedCredit{ID: "fc1", PayoutCents: 500}); err != nil {
		t.Fatal(err)
	}
	all := s.All()
	if len(all) != 1 || all[0].ID != "fc1" {
		t.Errorf("records = %+v", all)
	}
}
