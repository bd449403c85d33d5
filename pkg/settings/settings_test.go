package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	return NewService(
		filepath.Join(dir, "global", "settings.json"),
		filepath.Join(dir, "project", "settings.json"),
	)
}

func TestFieldKeepSetClear(t *testing.T) {
	assert.Equal(t, "current", Keep[string]().Apply("current"))
	assert.Equal(t, "new", SetTo("new").Apply("current"))
	assert.Equal(t, "", Clear[string]().Apply("current"))

	var zero Field[bool]
	assert.True(t, zero.Apply(true), "the zero Field keeps")
}

func TestUpdateAppliesOnlyNamedFields(t *testing.T) {
	s := &Settings{
		Preprompt:    "old preprompt",
		APIKey:       "old key",
		DebugEnabled: true,
	}

	Update{
		Preprompt: SetTo("new preprompt"),
		APIKey:    Clear[string](),
	}.ApplyTo(s)

	assert.Equal(t, "new preprompt", s.Preprompt)
	assert.Equal(t, "", s.APIKey)
	assert.True(t, s.DebugEnabled, "untouched fields keep their value")
}

func TestDeepMergeOverlayWins(t *testing.T) {
	base := map[string]interface{}{
		"a": "base",
		"b": "kept",
		"nested": map[string]interface{}{
			"x": 1,
			"y": 2,
		},
	}
	overlay := map[string]interface{}{
		"a": "overlay",
		"nested": map[string]interface{}{
			"y": 20,
		},
	}

	out := DeepMerge(base, overlay)

	assert.Equal(t, "overlay", out["a"])
	assert.Equal(t, "kept", out["b"])
	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, 1, nested["x"], "nested objects merge recursively")
	assert.Equal(t, 20, nested["y"])
}

func TestDeepMergeReplacesArraysWholesale(t *testing.T) {
	base := map[string]interface{}{"list": []interface{}{1, 2, 3}}
	overlay := map[string]interface{}{"list": []interface{}{9}}

	out := DeepMerge(base, overlay)
	assert.Equal(t, []interface{}{9}, out["list"])
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := map[string]interface{}{"a": "base"}
	overlay := map[string]interface{}{"a": "overlay", "b": "new"}

	_ = DeepMerge(base, overlay)
	assert.Equal(t, "base", base["a"])
	_, ok := base["b"]
	assert.False(t, ok)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	sv := newTestService(t)

	s := sv.Load(ScopeGlobal)
	assert.Equal(t, CurrentVersion, s.Version)
	assert.Equal(t, ScopeGlobal, s.SelectedScope)
}

func TestLoadCorruptFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	sv := NewService(path, filepath.Join(dir, "project.json"))

	s := sv.Load(ScopeGlobal)
	assert.Equal(t, CurrentVersion, s.Version)
	assert.Empty(t, s.Preprompt)
}

func TestUpdateRoundTrip(t *testing.T) {
	sv := newTestService(t)

	require.NoError(t, sv.Update(ScopeGlobal, Update{
		Preprompt: SetTo("be brief"),
		APIKey:    SetTo("sk-123"),
	}))

	fresh := NewService(sv.globalPath, sv.projectPath)
	s := fresh.Load(ScopeGlobal)
	assert.Equal(t, "be brief", s.Preprompt)
	assert.Equal(t, "sk-123", s.APIKey)
	assert.NotEmpty(t, s.LastModified)
}

func TestEffectiveUsesGlobalByDefault(t *testing.T) {
	sv := newTestService(t)
	require.NoError(t, sv.Update(ScopeGlobal, Update{Preprompt: SetTo("global preprompt")}))
	require.NoError(t, sv.Update(ScopeProject, Update{Preprompt: SetTo("project preprompt")}))

	assert.Equal(t, "global preprompt", sv.GetCurrentPreprompt())
}

func TestEffectiveProjectScopeOverlaysGlobal(t *testing.T) {
	sv := newTestService(t)
	require.NoError(t, sv.Update(ScopeGlobal, Update{
		Preprompt:     SetTo("global preprompt"),
		APIKey:        SetTo("global key"),
		SelectedScope: SetTo(ScopeProject),
	}))
	require.NoError(t, sv.Update(ScopeProject, Update{
		Preprompt: SetTo("project preprompt"),
	}))

	s := sv.Effective()
	assert.Equal(t, "project preprompt", s.Preprompt)
	assert.Equal(t, "global key", s.APIKey, "empty project fields must not blank out global values")
	assert.Equal(t, ScopeProject, s.SelectedScope)
}

func TestAPIKeyResolverPrecedence(t *testing.T) {
	dir := t.TempDir()
	projectCred := filepath.Join(dir, "project-cred")
	globalCred := filepath.Join(dir, "global-cred")
	require.NoError(t, os.WriteFile(projectCred, []byte("project-key\n"), 0o600))
	require.NoError(t, os.WriteFile(globalCred, []byte("global-key\n"), 0o600))

	sv := newTestService(t)
	require.NoError(t, sv.Update(ScopeGlobal, Update{APIKey: SetTo("settings-key")}))

	r := &APIKeyResolver{
		Override:           "override-key",
		Settings:           sv,
		ProjectCredentials: projectCred,
		GlobalCredentials:  globalCred,
		Static:             "static-key",
	}

	assert.Equal(t, "override-key", r.Resolve())

	r.Override = ""
	assert.Equal(t, "settings-key", r.Resolve())

	require.NoError(t, sv.Update(ScopeGlobal, Update{APIKey: Clear[string]()}))
	assert.Equal(t, "project-key", r.Resolve(), "credential files are trimmed")

	r.ProjectCredentials = filepath.Join(dir, "missing")
	assert.Equal(t, "global-key", r.Resolve())

	r.GlobalCredentials = filepath.Join(dir, "also-missing")
	assert.Equal(t, "static-key", r.Resolve())
}
