package settings

// Package settings stores panel configuration in two JSON files, a global one
// and a project-local one. A selected scope decides which file's values win
// when both are present. Updates go through typed partial-update structs with
// an explicit Keep / SetTo / Clear decision per field, never through ad-hoc
// map merging.

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const CurrentVersion = 1

type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

type Settings struct {
	Version       int    `json:"version"`
	Preprompt     string `json:"preprompt"`
	APIKey        string `json:"api_key"`
	DebugEnabled  bool   `json:"debug_enabled"`
	SelectedScope Scope  `json:"selected_scope"`
	LastModified  string `json:"last_modified"`
}

func NewSettings() *Settings {
	return &Settings{
		Version:       CurrentVersion,
		SelectedScope: ScopeGlobal,
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Service owns the two settings files. Loaded settings are cached per scope;
// writes update the cache together with the file.
type Service struct {
	globalPath  string
	projectPath string

	cache map[Scope]*Settings
}

func NewService(globalPath, projectPath string) *Service {
	return &Service{
		globalPath:  globalPath,
		projectPath: projectPath,
		cache:       map[Scope]*Settings{},
	}
}

func (sv *Service) pathFor(scope Scope) string {
	if scope == ScopeProject {
		return sv.projectPath
	}
	return sv.globalPath
}

// Load reads one scope's settings. Missing or unreadable files yield
// defaults; corruption is logged, never surfaced as a failure of the caller's
// action.
func (sv *Service) Load(scope Scope) *Settings {
	if cached, ok := sv.cache[scope]; ok {
		return cached
	}

	s := NewSettings()
	data, err := os.ReadFile(sv.pathFor(scope))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("scope", string(scope)).Msg("could not read settings file, using defaults")
		}
		sv.cache[scope] = s
		return s
	}
	if err := json.Unmarshal(data, s); err != nil {
		log.Error().Err(err).Str("scope", string(scope)).Msg("settings file is not valid JSON, using defaults")
		s = NewSettings()
	}
	sv.cache[scope] = s
	return s
}

func (sv *Service) Save(scope Scope, s *Settings) error {
	s.Version = CurrentVersion
	s.LastModified = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize settings")
	}

	path := sv.pathFor(scope)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "could not create settings directory")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return errors.Wrap(err, "could not write settings file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "could not replace settings file")
	}

	sv.cache[scope] = s
	return nil
}

// Update applies a partial update to one scope and persists the result.
func (sv *Service) Update(scope Scope, u Update) error {
	s := sv.Load(scope).Clone()
	u.ApplyTo(s)
	return sv.Save(scope, s)
}

// Effective merges global and project settings, with the selected scope
// (recorded in the global file) taking precedence. Unknown keys written by
// other versions survive the merge but are not decoded.
func (sv *Service) Effective() *Settings {
	global := sv.Load(ScopeGlobal)
	if global.SelectedScope != ScopeProject {
		return global.Clone()
	}

	merged := DeepMerge(toMap(global), overlayMap(sv.Load(ScopeProject)))
	s := NewSettings()
	if data, err := json.Marshal(merged); err == nil {
		_ = json.Unmarshal(data, s)
	}
	s.SelectedScope = ScopeProject
	return s
}

func toMap(s *Settings) map[string]interface{} {
	m := map[string]interface{}{}
	if data, err := json.Marshal(s); err == nil {
		_ = json.Unmarshal(data, &m)
	}
	return m
}

// overlayMap keeps only the project fields that actually carry a value, so a
// half-filled project file does not blank out global settings.
func overlayMap(s *Settings) map[string]interface{} {
	m := toMap(s)
	for _, k := range []string{"version", "selected_scope", "last_modified"} {
		delete(m, k)
	}
	for k, v := range m {
		if str, ok := v.(string); ok && str == "" {
			delete(m, k)
		}
	}
	return m
}

// GetCurrentPreprompt returns the preamble text of the effective scope.
func (sv *Service) GetCurrentPreprompt() string {
	return sv.Effective().Preprompt
}

// GetCurrentAPIKey returns the API key of the effective scope, empty when
// unset.
func (sv *Service) GetCurrentAPIKey() string {
	return sv.Effective().APIKey
}
