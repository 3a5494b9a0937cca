package version

// Build variables injected via ldflags:
// -X 'github.com/aionlabs/aion/pkg/version.Version=v0.1.0'
// -X 'github.com/aionlabs/aion/pkg/version.CommitHash=abc123'
// -X 'github.com/aionlabs/aion/pkg/version.BuildDate=2026-01-01T00:00:00Z'
var (
	// Version is the semantic version of the binary.
	Version = "dev"
	// CommitHash is the git commit the binary was built from.
	CommitHash = "unknown"
	// BuildDate is the build timestamp in RFC3339.
	BuildDate = "unknown"
)

// Info bundles build information for the status surface.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
	}
}
