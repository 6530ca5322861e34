package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups to keep.
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files.
	BackupSuffix = ".bak"

	// ConfigFileName is the project config file name.
	ConfigFileName = "ragcore.yaml"
)

// projectConfigPath returns the path to dir's project config file.
func projectConfigPath(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}

// ProjectConfigExists returns true if dir has a project config file.
func ProjectConfigExists(dir string) bool {
	info, err := os.Stat(projectConfigPath(dir))
	return err == nil && !info.IsDir()
}

// BackupProjectConfig creates a timestamped backup of dir's project config
// file. Returns the backup file path on success. If no config exists,
// returns empty string and nil error.
func BackupProjectConfig(dir string) (string, error) {
	configPath := projectConfigPath(dir)

	if !ProjectConfigExists(dir) {
		return "", nil
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, timestamp)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := cleanupOldBackups(dir); err != nil {
		_ = err
	}

	return backupPath, nil
}

// ListProjectConfigBackups returns all backup files for dir's project config,
// sorted by modification time (newest first).
func ListProjectConfigBackups(dir string) ([]string, error) {
	configPath := projectConfigPath(dir)
	configBase := filepath.Base(configPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	prefix := configBase + BackupSuffix + "."
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		infoI, _ := os.Stat(backups[i])
		infoJ, _ := os.Stat(backups[j])
		if infoI == nil || infoJ == nil {
			return false
		}
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return backups, nil
}

// cleanupOldBackups removes backups beyond MaxBackups, keeping the newest.
func cleanupOldBackups(dir string) error {
	backups, err := ListProjectConfigBackups(dir)
	if err != nil {
		return err
	}

	if len(backups) <= MaxBackups {
		return nil
	}

	for _, backup := range backups[MaxBackups:] {
		if err := os.Remove(backup); err != nil {
			continue
		}
	}

	return nil
}

// RestoreProjectConfig restores dir's project config from a backup file.
// The current config (if any) is backed up before restore.
func RestoreProjectConfig(dir string, backupPath string) error {
	configPath := projectConfigPath(dir)

	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	if ProjectConfigExists(dir) {
		if _, err := BackupProjectConfig(dir); err != nil {
			return fmt.Errorf("failed to backup current config before restore: %w", err)
		}
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}

	return nil
}
