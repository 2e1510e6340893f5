package versions

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfoRelease(t *testing.T) {
	t.Parallel()

	info := getVersionInfoWithValues("1.2.3", "abcdef1234567890", "2026-01-02T03:04:05Z")
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abcdef1234567890", info.Commit)
	assert.Equal(t, "2026-01-02 03:04:05 UTC", info.BuildDate)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestGetVersionInfoDevBuild(t *testing.T) {
	t.Parallel()

	info := getVersionInfoWithValues("dev", "abcdef1234567890", unknownStr)
	assert.True(t, strings.HasPrefix(info.Version, "build-abcdef12"), info.Version)
}
