package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"vidpress/internal/config"
	"vidpress/internal/services/backend"
)

// minStagingBytes is the least free space the staging volume should have
// before accepting new publish jobs.
const minStagingBytes = 1 << 30

// CheckDirectoryAccess verifies that the directory exists and is
// readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStagingSpace verifies that the staging volume has room for at
// least one large video file.
func CheckStagingSpace(path string) Result {
	const name = "Staging free space"

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free", humanize.IBytes(free))
	if free < minStagingBytes {
		return Result{Name: name, Detail: detail + " (below 1 GiB minimum)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckBackend verifies the site backend is reachable and accepts the
// configured token.
func CheckBackend(ctx context.Context, cfg *config.Config) Result {
	const name = "Backend API"

	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return Result{Name: name, Detail: "base URL not configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := backend.New(cfg).Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}
