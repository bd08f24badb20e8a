package buildtime

// Set by the linker:
//
//	go build -ldflags "-X github.com/opst/crabclient/pkg/buildtime.version=v3.240101 -X github.com/opst/crabclient/pkg/buildtime.revision=$(git rev-parse HEAD)"
var (
	version  = "development"
	revision = "unknown"
)

// version string when this client has been built.
func VERSION() string {
	return version
}

func GIT_REVISION() string {
	return revision
}

func VersionString() string {
	return version + " (commit: " + revision + ")"
}
