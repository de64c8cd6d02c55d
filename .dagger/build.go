package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/streamchat/internal/dagger"
)

// Build and return directory of go binaries for linux.
//
// go-sqlite3 needs cgo, so binaries are built inside the bookworm container
// for its native architecture only.
func (s *Streamchat) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	path := "linux/"

	build := s.goContainer().
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/streamchat"}).
		WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/streamchatd"})

	return dag.Directory().WithDirectory(path, build.Directory(path))
}

// BuildRelease compiles versioned release binaries with embedded version info
func (s *Streamchat) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/streamchat/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/streamchat/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/streamchat/pkg/utils.Buildtime=%s'", buildtime),
	}

	return s.Build(ctx, strings.Join(ldflags, " "))
}
