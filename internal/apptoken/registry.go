package apptoken

import (
	"strings"

	"github.com/bizstudio/portal/internal/config"
)

// Companion application ids.
const (
	AppMaterialCreator = "material_creator"
	AppJobAnalyzer     = "job_analyzer"
	AppCandidateIntake = "candidate_intake"
)

// tokenEnabledApps is the closed set of applications that may redeem app tokens.
var tokenEnabledApps = map[string]struct{}{
	AppMaterialCreator: {},
}

// IsTokenEnabled reports whether appID may be the target of an app token.
func IsTokenEnabled(appID string) bool {
	_, ok := tokenEnabledApps[appID]
	return ok
}

// Registry resolves launch URLs for companion applications.
type Registry struct {
	urls map[string]string
}

// NewRegistry builds a Registry from configured URL overrides.
func NewRegistry(apps config.AppURLs) *Registry {
	urls := make(map[string]string)
	for id, raw := range map[string]string{
		AppMaterialCreator: apps.MaterialCreator,
		AppJobAnalyzer:     apps.JobAnalyzer,
		AppCandidateIntake: apps.CandidateIntake,
	} {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			urls[id] = trimmed
		}
	}
	return &Registry{urls: urls}
}

// URLFor returns the configured override for appID, falling back to the system link URL.
func (r *Registry) URLFor(appID, fallback string) string {
	if r != nil {
		if u, ok := r.urls[appID]; ok {
			return u
		}
	}
	return fallback
}
