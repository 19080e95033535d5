// Package version carries build identity, stamped via -ldflags at release
// time:
//
//	go build -ldflags "-X foamcrm/internal/version.Version=v1.2.0 \
//	  -X foamcrm/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X foamcrm/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version 语义化版本号
	Version = "dev"
	// Commit 构建时的 git 提交
	Commit = "unknown"
	// BuildTime 构建时间（UTC）
	BuildTime = "unknown"
)
