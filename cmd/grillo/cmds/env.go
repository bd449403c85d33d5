package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/grillo/pkg/history"
	"github.com/go-go-golems/grillo/pkg/settings"
)

// Paths collects all the files grillo reads and writes. Global files live
// under ~/.grillo, project files under ./.grillo of the working directory.
type Paths struct {
	HistoryFile        string
	PointerFile        string
	GlobalSettings     string
	ProjectSettings    string
	GlobalCredentials  string
	ProjectCredentials string
}

func DefaultPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "could not determine home directory")
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "could not determine working directory")
	}

	globalDir := filepath.Join(home, ".grillo")
	projectDir := filepath.Join(cwd, ".grillo")

	return &Paths{
		HistoryFile:        filepath.Join(globalDir, "history.json"),
		PointerFile:        filepath.Join(globalDir, "last-conversation"),
		GlobalSettings:     filepath.Join(globalDir, "settings.json"),
		ProjectSettings:    filepath.Join(projectDir, "settings.json"),
		GlobalCredentials:  filepath.Join(globalDir, "credentials"),
		ProjectCredentials: filepath.Join(projectDir, "credentials"),
	}, nil
}

func newHistoryStore(paths *Paths) *history.Store {
	return history.NewStore(paths.HistoryFile)
}

func newSettingsService(paths *Paths) *settings.Service {
	return settings.NewService(paths.GlobalSettings, paths.ProjectSettings)
}

func newAPIKeyResolver(paths *Paths, service *settings.Service) *settings.APIKeyResolver {
	return &settings.APIKeyResolver{
		Override:           viper.GetString("openai-api-key"),
		Settings:           service,
		ProjectCredentials: paths.ProjectCredentials,
		GlobalCredentials:  paths.GlobalCredentials,
		Static:             viper.GetString("static-api-key"),
	}
}

// gatherEnvContext produces the machine-gathered context substituted into the
// system message.
func gatherEnvContext() string {
	cwd, _ := os.Getwd()
	return fmt.Sprintf("os: %s\narch: %s\ncwd: %s\ndate: %s",
		runtime.GOOS,
		runtime.GOARCH,
		cwd,
		time.Now().UTC().Format(time.RFC3339),
	)
}
