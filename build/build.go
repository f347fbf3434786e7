package build

import "fmt"

// populated at link time via -ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the build identity for version output.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, Date)
}
