package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/novaplay-gaming/crash-server/engine"
)

// HistoryStore appends settled rounds to data/round_history.json so players
// can audit revealed seeds against their commitments after the fact.
type HistoryStore struct {
	mu      sync.Mutex
	dataDir string
}

func NewHistoryStore(dataDir string) *HistoryStore {
	if dataDir == "" {
		dataDir = "data"
	}
	return &HistoryStore{dataDir: dataDir}
}

func (hs *HistoryStore) path() string {
	return filepath.Join(hs.dataDir, "round_history.json")
}

func (hs *HistoryStore) ensureDir() error {
	return os.MkdirAll(hs.dataDir, 0755)
}

func (hs *HistoryStore) Append(_ context.Context, rec engine.RoundRecord) error {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if err := hs.ensureDir(); err != nil {
		return err
	}
	path := hs.path()
	var list []engine.RoundRecord
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &list)
	}
	list = append(list, rec)
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetByRoundID returns a settled record by round id, or nil if not found.
func (hs *HistoryStore) GetByRoundID(roundID string) (*engine.RoundRecord, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	data, err := os.ReadFile(hs.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var list []engine.RoundRecord
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].RoundID == roundID {
			return &list[i], nil
		}
	}
	return nil, nil
}
