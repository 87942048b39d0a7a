package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"

	"github.com/TobiSchelling/AutoPoster/internal/jsonfile"
)

// Account is a LinkedIn account connected through OAuth.
type Account struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	ExpiresAtEpoch int64  `json:"expires_at_epoch"`
	PersonID       string `json:"person_id"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
}

// StoredAccount pairs an account with the chat user that owns it.
type StoredAccount struct {
	UserID int64
	Account
}

type document struct {
	Users map[string]Account `json:"users"`
}

// FileStore keeps connected accounts keyed by chat user id in one JSON file.
// Every mutation is a full read, in-memory change and atomic overwrite.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a token store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get returns the account for userID, or nil when none is stored.
func (s *FileStore) Get(_ context.Context, userID int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	acct, ok := doc.Users[key(userID)]
	if !ok {
		return nil, nil
	}
	return &acct, nil
}

// Save creates or overwrites the account for userID.
func (s *FileStore) Save(_ context.Context, userID int64, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Users[key(userID)] = acct
	return s.write(doc)
}

// Delete removes the account for userID. Deleting a missing account is a no-op.
func (s *FileStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	k := key(userID)
	if _, ok := doc.Users[k]; !ok {
		return nil
	}
	delete(doc.Users, k)
	return s.write(doc)
}

// All returns every stored account ordered by user id.
func (s *FileStore) All(_ context.Context) ([]StoredAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]StoredAccount, 0, len(doc.Users))
	for k, acct := range doc.Users {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			log.Printf("Skipping token store entry with non-numeric key %q", k)
			continue
		}
		out = append(out, StoredAccount{UserID: id, Account: acct})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// load reads the store. Any JSON object without a "users" map (including the
// legacy single-account layout) is treated as an empty store.
func (s *FileStore) load() (document, error) {
	var raw json.RawMessage
	found, err := jsonfile.Read(s.path, &raw)
	if err != nil {
		return document{}, fmt.Errorf("loading token store: %w", err)
	}
	doc := document{Users: map[string]Account{}}
	if !found {
		return doc, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		log.Printf("Token store %s is not a JSON object; treating as empty", s.path)
		return doc, nil
	}
	usersRaw, ok := obj["users"]
	if !ok {
		if _, legacy := obj["access_token"]; legacy {
			log.Printf("Token store %s uses the legacy single-account layout; ignoring it", s.path)
		}
		return doc, nil
	}
	if err := json.Unmarshal(usersRaw, &doc.Users); err != nil || doc.Users == nil {
		log.Printf("Token store %s has an unrecognized users section; treating as empty", s.path)
		return document{Users: map[string]Account{}}, nil
	}
	return doc, nil
}

func (s *FileStore) write(doc document) error {
	if err := jsonfile.Write(s.path, doc); err != nil {
		return fmt.Errorf("saving token store: %w", err)
	}
	return nil
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
