package autostart

import (
	"fmt"
	"os/exec"
)

const taskName = "MimicDaemon"

type WindowsAutoStarter struct{}

func (w *WindowsAutoStarter) Install(args []string) error {
	cmd := exec.Command("schtasks", "/create",
		"/TN", taskName,
		"/TR", quote(args),
		"/SC", "ONLOGON",
		"/F")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall() error {
	cmd := exec.Command("schtasks", "/DELETE", "/TN", taskName, "/F")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	if err := exec.Command("schtasks", "/Query", "/TN", taskName).Run(); err != nil {
		return false, nil
	}

	return true, nil
}
