package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"relaybot/internal/config"

	"github.com/spf13/cobra"
)

// serviceTarget describes where one init system keeps a user service and
// how to drive it.
type serviceTarget struct {
	path   string
	render func(execPath, cfgPath string) string
	hints  []string // printed after install
	logDir string   // created on install when set
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the relaybot background service",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install relaybot as a user service (launchd/systemd)",
		Long:  "Writes a service file that runs 'relaybot serve' at login and restarts it on failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := currentTarget()
			if err != nil {
				return err
			}
			cfgPath, err := filepath.Abs(config.ExpandPath(resolveConfigPath()))
			if err != nil {
				return err
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			return target.install(execPath, cfgPath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove the relaybot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := currentTarget()
			if err != nil {
				return err
			}
			return target.uninstall()
		},
	})
	return cmd
}

func currentTarget() (serviceTarget, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return serviceTarget{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	return targetFor(runtime.GOOS, home)
}

const (
	launchdLabel = "com.relaybot.serve"
	systemdUnit  = "relaybot.service"
)

func targetFor(goos, home string) (serviceTarget, error) {
	switch goos {
	case "darwin":
		plist := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
		logDir := filepath.Join(home, ".relaybot", "logs")
		return serviceTarget{
			path: plist,
			render: func(execPath, cfgPath string) string {
				return renderLaunchd(execPath, cfgPath, logDir)
			},
			hints: []string{
				"To start: launchctl load " + plist,
				"To stop:  launchctl unload " + plist,
			},
			logDir: logDir,
		}, nil
	case "linux":
		return serviceTarget{
			path:   filepath.Join(home, ".config", "systemd", "user", systemdUnit),
			render: renderSystemd,
			hints: []string{
				"To start:  systemctl --user start relaybot",
				"To enable: systemctl --user enable relaybot",
				"Logs:      journalctl --user -u relaybot -f",
			},
		}, nil
	default:
		return serviceTarget{}, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func (t serviceTarget) install(execPath, cfgPath string) error {
	if t.logDir != "" {
		if err := os.MkdirAll(t.logDir, 0o755); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(t.path, []byte(t.render(execPath, cfgPath)), 0o644); err != nil {
		return fmt.Errorf("write service file: %w", err)
	}
	fmt.Printf("Daemon installed: %s\n", t.path)
	for _, h := range t.hints {
		fmt.Println(h)
	}
	return nil
}

func (t serviceTarget) uninstall() error {
	if err := os.Remove(t.path); err != nil {
		return fmt.Errorf("remove service file: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", t.path)
	return nil
}

func renderLaunchd(execPath, cfgPath, logDir string) string {
	return strings.NewReplacer(
		"{{LABEL}}", launchdLabel,
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{LOG}}", filepath.Join(logDir, "relaybot.log"),
		"{{ERR_LOG}}", filepath.Join(logDir, "relaybot-error.log"),
	).Replace(launchdTemplate)
}

func renderSystemd(execPath, cfgPath string) string {
	return strings.NewReplacer(
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
	).Replace(systemdTemplate)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{LABEL}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{EXEC}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{CONFIG}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{LOG}}</string>
  <key>StandardErrorPath</key><string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=relaybot Slack relay
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5
KillSignal=SIGTERM
TimeoutStopSec=30

[Install]
WantedBy=default.target`
