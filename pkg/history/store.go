package history

// Package history implements the durable, versioned conversation store backed
// by a single JSON file. The store is the only component that reads or writes
// that file. Loads are cached in memory; every write goes through an atomic
// temp-file-and-rename so a failed save leaves the previous on-disk state
// intact.

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// CurrentVersion is the schema version this package reads and writes.
	CurrentVersion = 2

	// DefaultMaxItems caps the number of stored conversations; the oldest
	// (by recency of save, not access) are evicted first.
	DefaultMaxItems = 100
)

// ErrUnsupportedVersion is returned when the history file carries a schema
// version newer than this build understands. The file is left untouched.
var ErrUnsupportedVersion = errors.New("history file has an unsupported schema version")

// History is the persisted collection, newest-first.
type History struct {
	Version       int                          `json:"version"`
	Conversations []*conversation.Conversation `json:"conversations"`
}

func newDefaultHistory() *History {
	return &History{
		Version:       CurrentVersion,
		Conversations: []*conversation.Conversation{},
	}
}

type Store struct {
	path     string
	maxItems int

	cache *History
	// readOnly is set when the on-disk file was written by a newer version.
	// Overwriting it would destroy conversations this build cannot even
	// decode, so every write is refused until the file changes hands.
	readOnly bool
}

var _ conversation.Store = (*Store)(nil)

type StoreOption func(*Store)

func WithMaxItems(maxItems int) StoreOption {
	return func(s *Store) {
		if maxItems > 0 {
			s.maxItems = maxItems
		}
	}
}

func NewStore(path string, options ...StoreOption) *Store {
	ret := &Store{
		path:     path,
		maxItems: DefaultMaxItems,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted history. A missing file yields a fresh default
// without writing anything. Corrupt content is logged and replaced by the
// default in memory only. A v1 file is migrated, backed up and the migrated
// form persisted before returning. A newer version yields the default plus
// ErrUnsupportedVersion so the caller can report it; the file is not touched.
//
// The result is cached; later calls return the cached instance until
// Invalidate.
func (s *Store) Load() (*History, error) {
	if s.cache != nil {
		return s.cache, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.cache = newDefaultHistory()
			return s.cache, nil
		}
		log.Error().Err(err).Str("path", s.path).Msg("could not read history file, starting with empty history")
		s.cache = newDefaultHistory()
		return s.cache, nil
	}

	version, ok := probeVersion(data)
	if !ok {
		log.Error().Str("path", s.path).Msg("history file is not valid JSON, starting with empty history")
		s.cache = newDefaultHistory()
		return s.cache, nil
	}

	switch {
	case version <= 1:
		migrated, err := s.migrateV1(data)
		if err != nil {
			// Migration failures risk silent data loss, which is why this is
			// the loudest error in the whole load path.
			log.Error().Err(err).Str("path", s.path).Msg("v1 history migration failed, starting with empty history")
			s.cache = newDefaultHistory()
			return s.cache, err
		}
		s.cache = migrated
		if err := s.Save(); err != nil {
			log.Error().Err(err).Str("path", s.path).Msg("could not persist migrated history")
			return s.cache, err
		}
		return s.cache, nil

	case version == CurrentVersion:
		if err := validateV2(data); err != nil {
			log.Error().Err(err).Str("path", s.path).Msg("history file failed schema validation, starting with empty history")
			s.cache = newDefaultHistory()
			return s.cache, nil
		}
		var h History
		if err := json.Unmarshal(data, &h); err != nil {
			log.Error().Err(err).Str("path", s.path).Msg("could not decode history file, starting with empty history")
			s.cache = newDefaultHistory()
			return s.cache, nil
		}
		if h.Conversations == nil {
			h.Conversations = []*conversation.Conversation{}
		}
		s.cache = &h
		return s.cache, nil

	default:
		log.Error().Int("version", version).Int("supported", CurrentVersion).
			Str("path", s.path).Msg("history file was written by a newer version, refusing to write to it")
		s.readOnly = true
		s.cache = newDefaultHistory()
		return s.cache, ErrUnsupportedVersion
	}
}

// probeVersion inspects only the version field. An absent version on valid
// JSON means v1 (the legacy flat-entries shape predates the field).
func probeVersion(data []byte) (int, bool) {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, false
	}
	if probe.Version == nil {
		return 1, true
	}
	return *probe.Version, true
}

// Save serializes the cached history and makes it durable atomically: the
// content is written to a sibling temp file and renamed over the target, so
// either the write fully succeeds or the prior content stays intact.
func (s *Store) Save() error {
	if s.readOnly {
		return errors.Wrap(ErrUnsupportedVersion, "refusing to overwrite a newer-version history file")
	}
	if s.cache == nil {
		s.cache = newDefaultHistory()
	}

	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize history")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "could not create history directory")
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrap(err, "could not write history file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Wrap(err, "could not replace history file")
	}

	log.Debug().Str("path", s.path).Int("conversations", len(s.cache.Conversations)).Msg("saved history")
	return nil
}

// SaveConversation upserts by id: an existing conversation is replaced in
// place (keeping its position), a new one is inserted at the front.
// updated_at is always recomputed; created_at and summary are filled in when
// absent. The size cap is enforced by trimming from the tail before saving.
func (s *Store) SaveConversation(c *conversation.Conversation) error {
	if c == nil || c.ID == "" {
		return errors.New("conversation has no id")
	}

	h, _ := s.Load()

	stored := clone.Clone(c).(*conversation.Conversation)
	stored.UpdatedAt = conversation.Timestamp()
	if stored.CreatedAt == "" {
		stored.CreatedAt = stored.UpdatedAt
	}
	if stored.Summary == "" {
		stored.Summary = conversation.Summarize(stored.Messages)
	}

	replaced := false
	for i, existing := range h.Conversations {
		if existing.ID == stored.ID {
			if stored.CreatedAt == stored.UpdatedAt && existing.CreatedAt != "" {
				stored.CreatedAt = existing.CreatedAt
			}
			h.Conversations[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		h.Conversations = append([]*conversation.Conversation{stored}, h.Conversations...)
	}

	if len(h.Conversations) > s.maxItems {
		evicted := len(h.Conversations) - s.maxItems
		h.Conversations = h.Conversations[:s.maxItems]
		log.Debug().Int("evicted", evicted).Int("max_items", s.maxItems).Msg("trimmed history to size cap")
	}

	return s.Save()
}

func (s *Store) GetConversation(id string) (*conversation.Conversation, bool) {
	h, _ := s.Load()
	for _, c := range h.Conversations {
		if c.ID == id {
			return clone.Clone(c).(*conversation.Conversation), true
		}
	}
	return nil, false
}

func (s *Store) DeleteConversation(id string) error {
	h, _ := s.Load()
	for i, c := range h.Conversations {
		if c.ID == id {
			h.Conversations = append(h.Conversations[:i], h.Conversations[i+1:]...)
			return s.Save()
		}
	}
	return errors.Errorf("conversation %s not found in history", id)
}

// DeleteConversationByIndex removes the conversation at the given 1-indexed,
// newest-first position.
func (s *Store) DeleteConversationByIndex(index int) error {
	h, _ := s.Load()
	if index < 1 || index > len(h.Conversations) {
		return errors.Errorf("history index %d out of range (1-%d)", index, len(h.Conversations))
	}
	i := index - 1
	h.Conversations = append(h.Conversations[:i], h.Conversations[i+1:]...)
	return s.Save()
}

func (s *Store) ClearAll() error {
	s.cache = newDefaultHistory()
	return s.Save()
}

// Invalidate drops the in-memory cache so the next Load rereads the file. It
// also lifts the read-only latch, since the file may have been replaced with
// one this build understands.
func (s *Store) Invalidate() {
	s.cache = nil
	s.readOnly = false
}

const v2Schema = `{
  "type": "object",
  "required": ["version", "conversations"],
  "properties": {
    "version": {"type": "integer"},
    "conversations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "messages"],
        "properties": {
          "id": {"type": "string"},
          "created_at": {"type": "string"},
          "updated_at": {"type": "string"},
          "summary": {"type": "string"},
          "messages": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["role", "content"],
              "properties": {
                "role": {"type": "string"},
                "content": {"type": "string"},
                "timestamp": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

func validateV2(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(v2Schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return errors.Wrap(err, "could not validate history file")
	}
	if !result.Valid() {
		msgs := ""
		for _, e := range result.Errors() {
			if msgs != "" {
				msgs += "; "
			}
			msgs += e.String()
		}
		return errors.Errorf("history file does not match schema: %s", msgs)
	}
	return nil
}
