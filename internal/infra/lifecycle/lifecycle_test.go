package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHooks(t *testing.T) {
	out := filepath.Join(t.TempDir(), "hooks.txt")

	RunHooks(context.Background(), []string{
		"echo first >> " + out,
		"exit 3",
		"echo second >> " + out,
	}, "on_started")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestRunHooks_Empty(t *testing.T) {
	RunHooks(context.Background(), nil, "on_stopped")
}

func TestNotify_WithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	Ready()
	Reloading()
	Stopping()
}
