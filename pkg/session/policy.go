package session

// Package session ties the engine together for one panel session: the restore
// policy that decides which conversation to open with, and the request
// lifecycle controller that drives a single in-flight completion at a time.

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/rs/zerolog/log"
)

type RestoreMode string

const (
	// RestoreNever always opens with a fresh conversation.
	RestoreNever RestoreMode = "never"
	// RestoreSession resumes the last conversation of this running process.
	RestoreSession RestoreMode = "session"
	// RestoreAlways resumes across restarts through a persisted pointer file.
	RestoreAlways RestoreMode = "always"
)

func ParseRestoreMode(s string) (RestoreMode, bool) {
	switch RestoreMode(strings.ToLower(strings.TrimSpace(s))) {
	case RestoreNever:
		return RestoreNever, true
	case RestoreSession:
		return RestoreSession, true
	case RestoreAlways:
		return RestoreAlways, true
	}
	return RestoreNever, false
}

// ConversationResolver checks whether a pointed-at conversation still exists.
type ConversationResolver interface {
	GetConversation(id string) (*conversation.Conversation, bool)
}

// RestorePolicy decides at panel-open time whether to resume a prior
// conversation. It doubles as the manager's last-active pointer: every persist
// records the id in process memory, and in RestoreAlways mode also in a small
// pointer file so the next process can pick it up.
type RestorePolicy struct {
	mode        RestoreMode
	pointerPath string
	store       ConversationResolver

	mu        sync.Mutex
	lastID    string
	attempted bool
}

var _ conversation.LastActivePointer = (*RestorePolicy)(nil)

func NewRestorePolicy(mode RestoreMode, pointerPath string, store ConversationResolver) *RestorePolicy {
	return &RestorePolicy{
		mode:        mode,
		pointerPath: pointerPath,
		store:       store,
	}
}

func (p *RestorePolicy) Mode() RestoreMode {
	return p.mode
}

func (p *RestorePolicy) Record(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastID = id
	if p.mode != RestoreAlways || p.pointerPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.pointerPath), 0o755); err != nil {
		log.Warn().Err(err).Msg("could not create pointer directory")
		return
	}
	if err := os.WriteFile(p.pointerPath, []byte(id+"\n"), 0o644); err != nil {
		log.Warn().Err(err).Str("path", p.pointerPath).Msg("could not write last-active pointer")
	}
}

func (p *RestorePolicy) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastID = ""
	p.removePointerFile()
}

func (p *RestorePolicy) removePointerFile() {
	if p.pointerPath == "" {
		return
	}
	if err := os.Remove(p.pointerPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", p.pointerPath).Msg("could not remove last-active pointer")
	}
}

// ResolveAtOpen returns the conversation id to resume, if any. It runs at most
// once per panel open and never when a conversation is already active, so
// reopening an open panel cannot re-trigger restore. A pointer that no longer
// resolves in the store is treated as stale and cleared.
func (p *RestorePolicy) ResolveAtOpen(hasActive bool) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attempted {
		return "", false
	}
	p.attempted = true

	if hasActive || p.mode == RestoreNever {
		return "", false
	}

	id := p.lastID
	if id == "" && p.mode == RestoreAlways {
		id = p.readPointerFile()
	}
	if id == "" {
		return "", false
	}

	if p.store != nil {
		if _, ok := p.store.GetConversation(id); !ok {
			log.Debug().Str("conversation_id", id).Msg("stale last-active pointer, starting fresh")
			p.lastID = ""
			p.removePointerFile()
			return "", false
		}
	}

	log.Debug().Str("conversation_id", id).Str("mode", string(p.mode)).Msg("resuming conversation")
	return id, true
}

func (p *RestorePolicy) readPointerFile() string {
	if p.pointerPath == "" {
		return ""
	}
	data, err := os.ReadFile(p.pointerPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p.pointerPath).Msg("could not read last-active pointer")
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}
