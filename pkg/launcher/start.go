package launcher

import (
	"log/slog"
	"os/exec"
)

func startCommandDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}

	// Reap the child without tying the caller to the screen's lifetime.
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("Settings command exited with error", "command", name, "error", err)
		}
	}()
	return nil
}
