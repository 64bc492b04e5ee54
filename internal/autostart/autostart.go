package autostart

import (
	"runtime"
	"strings"
)

type AutoStarter interface {
	Install(args []string) error
	Uninstall() error
	IsInstalled() (bool, error)
}

func New() AutoStarter {
	switch runtime.GOOS {
	case "windows":
		return &WindowsAutoStarter{}
	case "linux":
		return &LinuxAutoStarter{}
	default:
		return &UnsupportedAutoStarter{}
	}
}

// CommandLine builds the daemon invocation registered for autostart.
func CommandLine(execPath, cfgFile string) []string {
	args := []string{execPath, "watch"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return args
}

func quote(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

type UnsupportedAutoStarter struct{}

func (u *UnsupportedAutoStarter) Install(_ []string) error {
	return nil
}

func (u *UnsupportedAutoStarter) Uninstall() error {
	return nil
}

func (u *UnsupportedAutoStarter) IsInstalled() (bool, error) {
	return false, nil
}
