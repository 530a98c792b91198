// 版本信息，BuildTime/GitCommit 由构建时 -ldflags 注入

package version

import (
	"fmt"
	"runtime"
)

var (
	Version    = "1.3.0"
	APIVersion = "1"
	BuildTime  string
	GitCommit  string
)

func GetVersion() string {
	return Version
}

// GetFullVersion 返回包含构建信息的版本串
func GetFullVersion() string {
	s := Version
	if GitCommit != "" {
		s += "+" + GitCommit
	}
	if BuildTime != "" {
		s += " (" + BuildTime + ")"
	}
	return fmt.Sprintf("%s %s/%s %s", s, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
