// ABOUTME: XDG-based config and data directory resolution for the storyteller CLI.
// ABOUTME: Checks XDG_CONFIG_HOME / XDG_DATA_HOME, falls back to ~/.config/storyteller and ~/.local/share/storyteller.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

const configFileName = "config.yaml"

// defaultConfigDir returns the default config directory for storyteller.
// It checks XDG_CONFIG_HOME first, then falls back to ~/.config/storyteller.
func defaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "storyteller"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".config", "storyteller"), nil
}

// defaultConfigPath returns the config file read when -config is not given.
func defaultConfigPath() (string, error) {
	dir, err := defaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

const journalFileName = "runs.jsonl"

// journalOff is the -journal value that disables the run journal.
const journalOff = "off"

// defaultDataDir returns the default data directory for storyteller state.
// It checks XDG_DATA_HOME first, then falls back to ~/.local/share/storyteller.
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "storyteller"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "storyteller"), nil
}

// defaultJournalPath returns the run journal used when -journal is not given.
func defaultJournalPath() (string, error) {
	dir, err := defaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, journalFileName), nil
}
