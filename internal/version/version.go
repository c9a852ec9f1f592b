package version

import "fmt"

// Build metadata, set through -ldflags "-X stock-price-alerts/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the metadata on one line.
func String() string {
	return fmt.Sprintf("stockwatch %s (commit %s, built %s)", Version, Commit, BuildDate)
}
