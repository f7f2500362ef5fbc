package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
)

// BuildInfo identifies the running binary. Values come from ldflags.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	App          BuildInfo         `json:"app"`
	GoVersion    string            `json:"go_version"`
	Platform     string            `json:"platform"`
	Dependencies map[string]string `json:"dependencies"`
}

// NewVersionResponse describes info and the running toolchain.
func NewVersionResponse(info BuildInfo) VersionResponse {
	if info.Version == "" {
		info.Version = "dev"
	}
	deps := crucible.GetVersion()
	return VersionResponse{
		App:       info,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Dependencies: map[string]string{
			"gofulmen": deps.Gofulmen,
			"crucible": deps.Crucible,
		},
	}
}

// NewVersionHandler serves build metadata. The body is computed once.
func NewVersionHandler(info BuildInfo) http.HandlerFunc {
	body := NewVersionResponse(info)
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, body)
	}
}
