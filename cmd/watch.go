package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mimic/internal/daemon"
	"mimic/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start mirroring every configured pair",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	specs, err := cfg.Specs()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	supervisor := daemon.NewSupervisor(cfg, specs)
	srv := daemon.NewServer(supervisor, cfg.DaemonPort)

	if err := srv.Listen(); err != nil {
		return err
	}

	if err := supervisor.Start(); err != nil {
		_ = srv.Close()
		return err
	}
	srv.Start()

	logger.Log.Info("mimic daemon started",
		zap.Int("pairs", len(specs)),
		zap.Int("port", cfg.DaemonPort))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	case <-quitPrompt():
		logger.Log.Info("stop requested from terminal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

// quitPrompt fires when the operator types q. It never fires when stdin is
// not a terminal, e.g. under systemd.
func quitPrompt() <-chan struct{} {
	quitCh := make(chan struct{})
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return quitCh
	}

	fmt.Println("mirroring, type q and press enter to quit")

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
				close(quitCh)
				return
			}
		}
	}()

	return quitCh
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
