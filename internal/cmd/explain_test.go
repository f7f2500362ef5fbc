package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexplain/codexplain/internal/client"
	"github.com/codexplain/codexplain/internal/clock"
	"github.com/codexplain/codexplain/internal/config"
	"github.com/codexplain/codexplain/internal/core"
	"github.com/codexplain/codexplain/internal/core/ratelimit"
	apperrors "github.com/codexplain/codexplain/internal/errors"
	"github.com/codexplain/codexplain/internal/observability"
	"github.com/codexplain/codexplain/internal/server/handlers"
)

func TestResolveLanguage(t *testing.T) {
	cases := []struct {
		flag string
		path string
		want string
	}{
		{"Rust", "main.go", "rust"},
		{"", "main.go", "go"},
		{"", "src/App.TSX", "typescript"},
		{"", "notes.txt", core.DefaultLanguage},
		{"", "-", core.DefaultLanguage},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, resolveLanguage(tc.flag, tc.path), "flag=%q path=%q", tc.flag, tc.path)
	}
}

func TestReadSource(t *testing.T) {
	code, err := readSource(strings.NewReader("print(1)\n"), "-")
	require.NoError(t, err)
	require.Equal(t, "print(1)\n", code)

	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o600))
	code, err = readSource(nil, path)
	require.NoError(t, err)
	require.Equal(t, "package main\n", code)

	_, err = readSource(nil, filepath.Join(t.TempDir(), "missing.go"))
	require.Error(t, err)
	require.Equal(t, foundry.ExitFileNotFound, ExitCodeFor(err))
}

func TestCheckLocalQuotaRefusesAfterMax(t *testing.T) {
	observability.InitCLILogger("codexplain-test", false)

	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter, err := ratelimit.NewClientLimiter(ratelimit.ClientOptions{
		Quota:   ratelimit.Quota{Max: 2, Window: time.Minute},
		Storage: ratelimit.NewMemoryStorage(),
		Clock:   clk,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, checkLocalQuota(ctx, limiter))
	require.NoError(t, checkLocalQuota(ctx, limiter))
	require.ErrorIs(t, checkLocalQuota(ctx, limiter), errLocalQuotaExhausted)
	require.Equal(t, 0, limiter.GetRemainingRequests(ctx))

	clk.Advance(time.Minute)
	require.NoError(t, checkLocalQuota(ctx, limiter))
}

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(fmt.Errorf("%w: bad port", errConfigInvalid)))
	require.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(apperrors.NewConfigInvalidError("bad")))
	require.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(&client.StatusError{StatusCode: 500}))
	require.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(fmt.Errorf("%w: refused", client.ErrUnreachable)))
	require.Equal(t, foundry.ExitFailure, ExitCodeFor(errLocalQuotaExhausted))
	require.Equal(t, foundry.ExitFailure, ExitCodeFor(&client.RateLimitError{Message: "slow down"}))
}

func TestBuildInitConfigLoads(t *testing.T) {
	data, err := buildInitConfig()
	require.NoError(t, err)

	v := config.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))

	cfg, err := config.Load(v)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.RateLimit.Server.Max)
	require.Equal(t, time.Hour, cfg.RateLimit.Client.Window)
}

func TestEmitWritesFileAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "explain.md")

	c := &cobra.Command{}
	addOutputFlags(c)
	require.NoError(t, c.Flags().Set("out", path))
	require.NoError(t, emit(c, "## Explanation (go)"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "## Explanation (go)\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestEmitDefaultsToStdout(t *testing.T) {
	var buf bytes.Buffer
	c := &cobra.Command{}
	addOutputFlags(c)
	c.SetOut(&buf)

	require.NoError(t, emit(c, "3 request(s) remaining\n"))
	assert.Equal(t, "3 request(s) remaining\n", buf.String())
}

func TestVersionCommandJSONMatchesEndpoint(t *testing.T) {
	SetVersionInfo("1.4.0", "abc1234", "2026-10-19")
	t.Cleanup(func() { SetVersionInfo("dev", "", "") })

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	require.NoError(t, versionCmd.Flags().Set("json", "true"))
	t.Cleanup(func() { _ = versionCmd.Flags().Set("json", "false") })

	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	var got handlers.VersionResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "codexplain", got.App.Name)
	assert.Equal(t, "1.4.0", got.App.Version)
	assert.Equal(t, "abc1234", got.App.Commit)
}
