package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// legacyEntry is the v1 shape: one flat prompt/response exchange.
type legacyEntry struct {
	Timestamp string `json:"timestamp"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
}

type legacyHistory struct {
	Version int           `json:"version"`
	Entries []legacyEntry `json:"entries"`
}

var migrationCounter int64

// migrateV1 converts a v1 file into the v2 shape. Each entry becomes one
// conversation holding exactly a user and an assistant message, both stamped
// with the entry's original timestamp. A one-time backup of the original
// content is written first; if the backup cannot be written the migration is
// aborted, since overwriting the only copy would risk silent data loss.
//
// The conversations keep the v1 entry order. v2 normally stores newest
// first, so migrated files come out oldest-first; this mirrors the behavior
// of the original history format and is kept for compatibility.
func (s *Store) migrateV1(data []byte) (*History, error) {
	var legacy legacyHistory
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, errors.Wrap(err, "could not decode v1 history")
	}

	backupPath := s.path + ".v1.backup"
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		if err := os.WriteFile(backupPath, data, 0o644); err != nil {
			return nil, errors.Wrap(err, "could not write v1 backup before migration")
		}
		log.Info().Str("backup", backupPath).Msg("backed up v1 history before migration")
	}

	h := newDefaultHistory()
	for _, entry := range legacy.Entries {
		c := &conversation.Conversation{
			ID:        migrationID(),
			CreatedAt: entry.Timestamp,
			UpdatedAt: entry.Timestamp,
			Messages: []conversation.Message{
				{Role: conversation.RoleUser, Content: entry.Prompt, Timestamp: entry.Timestamp},
				{Role: conversation.RoleAssistant, Content: entry.Response, Timestamp: entry.Timestamp},
			},
		}
		c.Summary = conversation.Summarize(c.Messages)
		h.Conversations = append(h.Conversations, c)
	}

	log.Info().Int("entries", len(legacy.Entries)).Msg("migrated v1 history to v2")
	return h, nil
}

// migrationID combines wall-clock time with a counter so that ids stay
// unique within a migration batch, where every entry is converted in the
// same instant.
func migrationID() string {
	return fmt.Sprintf("%d-m%d", time.Now().UTC().Unix(), atomic.AddInt64(&migrationCounter, 1))
}
