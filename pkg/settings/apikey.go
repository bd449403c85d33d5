package settings

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// APIKeySource provides the UI-configured key, usually a *Service.
type APIKeySource interface {
	GetCurrentAPIKey() string
}

// APIKeyResolver resolves the credential for the completion API. Precedence,
// first non-empty wins:
//
//	explicit runtime override
//	> UI-configured settings value
//	> project-local credential file
//	> user-global credential file
//	> static configuration value
type APIKeyResolver struct {
	Override           string
	Settings           APIKeySource
	ProjectCredentials string
	GlobalCredentials  string
	Static             string
}

func (r *APIKeyResolver) Resolve() string {
	if r.Override != "" {
		return r.Override
	}
	if r.Settings != nil {
		if key := r.Settings.GetCurrentAPIKey(); key != "" {
			return key
		}
	}
	if key := readCredentialFile(r.ProjectCredentials); key != "" {
		return key
	}
	if key := readCredentialFile(r.GlobalCredentials); key != "" {
		return key
	}
	return r.Static
}

func readCredentialFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("could not read credential file")
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}
