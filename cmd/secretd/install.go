//go:build darwin

package main

import (
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

const launchAgentLabel = "dev.secretkit.secretd"

func launchAgentPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home dir: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", launchAgentLabel+".plist"), nil
}

// launchAgentPlist renders the agent definition running binary against
// the config at configFile.
func launchAgentPlist(binary, configFile, logPath string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>--config</string>
        <string>%s</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardErrorPath</key>
    <string>%s</string>
</dict>
</plist>
`, launchAgentLabel, html.EscapeString(binary), html.EscapeString(configFile), html.EscapeString(logPath))
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Run secretd as a LaunchAgent (starts on login)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		binary, err := os.Executable()
		if err != nil {
			return fmt.Errorf("finding binary path: %w", err)
		}
		binary, err = filepath.EvalSymlinks(binary)
		if err != nil {
			return fmt.Errorf("resolving binary path: %w", err)
		}
		configFile, err := filepath.Abs(configPath)
		if err != nil {
			return err
		}

		plistPath, err := launchAgentPath()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
			return fmt.Errorf("creating LaunchAgents dir: %w", err)
		}

		logPath := filepath.Join(filepath.Dir(configFile), "secretd.log")
		if err := os.WriteFile(plistPath, []byte(launchAgentPlist(binary, configFile, logPath)), 0644); err != nil {
			return fmt.Errorf("writing plist: %w", err)
		}
		if err := exec.Command("launchctl", "load", plistPath).Run(); err != nil {
			return fmt.Errorf("launchctl load: %w", err)
		}

		fmt.Printf("Installed LaunchAgent: %s\n", plistPath)
		fmt.Printf("Config: %s\n", configFile)
		fmt.Printf("Logs: %s\n", logPath)
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the secretd LaunchAgent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plistPath, err := launchAgentPath()
		if err != nil {
			return err
		}

		// May not be loaded.
		_ = exec.Command("launchctl", "unload", plistPath).Run()

		if err := os.Remove(plistPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing plist: %w", err)
		}
		fmt.Println("Uninstalled secretd LaunchAgent.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}
