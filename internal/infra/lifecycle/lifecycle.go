// Package lifecycle runs operator hooks and reports service state to systemd.
package lifecycle

import (
	"context"
	"os"
	"os/exec"

	"github.com/coreos/go-systemd/v22/daemon"
	zlog "github.com/rs/zerolog/log"
)

// RunHooks runs a list of shell commands in order. A failing hook is logged
// and the rest still run.
func RunHooks(ctx context.Context, hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("lifecycle: executing %s hooks: count=%d", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("lifecycle: executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.CommandContext(ctx, "sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("lifecycle: hook failed: %s", hook)
		}
	}
}

// Ready tells systemd the service finished starting.
func Ready() { notify(daemon.SdNotifyReady) }

// Stopping tells systemd the service is shutting down.
func Stopping() { notify(daemon.SdNotifyStopping) }

// Reloading tells systemd the configuration is being reloaded.
func Reloading() { notify(daemon.SdNotifyReloading) }

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		zlog.Warn().Msgf("lifecycle: sd_notify failed: state=%s err=%v", state, err)
	case sent:
		zlog.Debug().Msgf("lifecycle: sd_notify sent: state=%s", state)
	}
}
