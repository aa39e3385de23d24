package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// FileStore keeps the state in a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The directory is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

type fileDocument struct {
	NotifiedNews   json.RawMessage            `json:"notified_news"`
	LastPrice      map[string]decimal.Decimal `json:"last_price"`
	LastIndexValue map[string]decimal.Decimal `json:"last_index_value"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// Load implements StateStore.
func (f *FileStore) Load(_ context.Context) (*State, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return NewState(), persistErr("read state file", err)
	}

	st, err := decodeState(raw)
	if err != nil {
		return NewState(), persistErr("decode state file "+f.path, err)
	}
	return st, nil
}

// decodeState accepts the current document and the older bare list of sent URLs.
func decodeState(raw []byte) (*State, error) {
	var urls []string
	if err := json.Unmarshal(raw, &urls); err == nil {
		st := NewState()
		for _, u := range urls {
			st.NotifiedNews[u] = time.Time{}
		}
		return st, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	st := NewState()
	st.UpdatedAt = doc.UpdatedAt
	for k, v := range doc.LastPrice {
		st.LastPrice[k] = v
	}
	for k, v := range doc.LastIndexValue {
		st.LastIndexValue[k] = v
	}

	if len(doc.NotifiedNews) > 0 && string(doc.NotifiedNews) != "null" {
		if err := json.Unmarshal(doc.NotifiedNews, &st.NotifiedNews); err != nil {
			if err := json.Unmarshal(doc.NotifiedNews, &urls); err != nil {
				return nil, fmt.Errorf("notified_news: %w", err)
			}
			st.NotifiedNews = make(map[string]time.Time, len(urls))
			for _, u := range urls {
				st.NotifiedNews[u] = time.Time{}
			}
		}
	}
	return st, nil
}

// Save implements StateStore. The file is replaced atomically.
func (f *FileStore) Save(_ context.Context, st *State) error {
	payload, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return persistErr("encode state", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr("create state dir", err)
	}

	tmp, err := os.CreateTemp(dir, ".alert_state-*.json")
	if err != nil {
		return persistErr("create temp state file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return persistErr("write temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr("close temp state file", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return persistErr("replace state file", err)
	}
	return nil
}

var _ StateStore = (*FileStore)(nil)
