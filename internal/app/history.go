package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HistoryStore persists the ordered conversation list as a single JSON slot,
// replaced wholesale on every save. It is read once at startup and has a
// single writer for the lifetime of the process.
type HistoryStore struct {
	Path   string
	Logger *Logger

	conversations []Conversation
}

func NewHistoryStore(path string, logger *Logger) *HistoryStore {
	if strings.TrimSpace(path) == "" {
		path = DefaultHistoryPath()
	}
	return &HistoryStore{Path: path, Logger: logger}
}

// Load reads the persisted conversation list. A missing or malformed file
// degrades to an empty list; startup never fails on history problems.
func (s *HistoryStore) Load() []Conversation {
	s.conversations = nil

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.Logger.Error("history read failed", map[string]interface{}{"path": s.Path, "error": err.Error()})
		}
		return s.Conversations()
	}

	// Only the exact schema version we write is readable; an unknown future
	// version fails soft to empty like a corrupt file would.
	var payload historyFile
	if err := json.Unmarshal(data, &payload); err == nil && payload.Version == historyVersion {
		s.conversations = payload.Conversations
		return s.Conversations()
	}

	// Pre-versioning files hold a bare conversation array.
	var legacy []Conversation
	if err := json.Unmarshal(data, &legacy); err != nil {
		s.Logger.Error("history parse failed", map[string]interface{}{"path": s.Path, "error": err.Error()})
		return s.Conversations()
	}
	s.conversations = legacy
	return s.Conversations()
}

// Save writes the whole list back to disk. Failures are logged and swallowed;
// in-memory state stays authoritative for the running session.
func (s *HistoryStore) Save() {
	payload := historyFile{Version: historyVersion, Conversations: s.conversations}
	if payload.Conversations == nil {
		payload.Conversations = []Conversation{}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		s.Logger.Error("history encode failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		s.logWriteError(err)
		return
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		s.logWriteError(err)
	}
}

func (s *HistoryStore) logWriteError(err error) {
	perr := &PersistenceError{Path: s.Path, Op: "write", Err: err}
	s.Logger.Error("history write failed", map[string]interface{}{"error": perr.Error()})
}

// Upsert replaces the conversation with the same id in place, or inserts at
// the head so the list stays most-recently-active first. Saves afterwards.
func (s *HistoryStore) Upsert(conv Conversation) {
	for i := range s.conversations {
		if s.conversations[i].ID == conv.ID {
			s.conversations[i] = conv
			s.Save()
			return
		}
	}
	s.conversations = append([]Conversation{conv}, s.conversations...)
	s.Save()
}

// Remove deletes by id; absent ids are a no-op and do not trigger a save.
func (s *HistoryStore) Remove(id string) {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			s.Save()
			return
		}
	}
}

// Get returns the conversation with the given id, if present.
func (s *HistoryStore) Get(id string) (Conversation, bool) {
	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// Conversations returns the ordered list, most recently active first.
func (s *HistoryStore) Conversations() []Conversation {
	if s.conversations == nil {
		return []Conversation{}
	}
	return s.conversations
}

const maxPromptHistory = 200

type promptHistory struct {
	Entries   []string  `json:"entries"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *HistoryStore) promptHistoryPath() string {
	return filepath.Join(filepath.Dir(s.Path), "prompts.json")
}

// SavePromptHistory persists the recall list for the input box. Like Save,
// failures are logged and swallowed.
func (s *HistoryStore) SavePromptHistory(entries []string) {
	payload := promptHistory{
		Entries:   normalizePromptHistory(entries, maxPromptHistory),
		UpdatedAt: time.Now(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		s.logWriteError(err)
		return
	}
	if err := os.WriteFile(s.promptHistoryPath(), data, 0o644); err != nil {
		s.logWriteError(err)
	}
}

func (s *HistoryStore) LoadPromptHistory() []string {
	b, err := os.ReadFile(s.promptHistoryPath())
	if err != nil {
		return []string{}
	}
	var payload promptHistory
	if err := json.Unmarshal(b, &payload); err != nil {
		return []string{}
	}
	return normalizePromptHistory(payload.Entries, maxPromptHistory)
}

func normalizePromptHistory(entries []string, max int) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == entry {
			continue
		}
		out = append(out, entry)
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
