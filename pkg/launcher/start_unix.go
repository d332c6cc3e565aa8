//go:build unix

package launcher

import (
	"os/exec"
	"syscall"
)

// detach starts the command in its own session so it outlives the bridge.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
