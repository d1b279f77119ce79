package utils

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
)

// AppDirName is the directory name used under the platform config location.
const AppDirName = "suggestserve"

// PathResolver resolves data file locations relative to the working
// directory, the running executable and the platform config directory.
type PathResolver struct {
	executablePath string
	executableDir  string
	homeDir        string
	configDir      string
}

// NewPathResolver creates a new path resolver that determines the executable location
func NewPathResolver() (*PathResolver, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		homeDir = os.TempDir()
	}

	pr := &PathResolver{
		executablePath: execPath,
		executableDir:  filepath.Dir(execPath),
		homeDir:        homeDir,
		configDir:      ConfigDirFor(homeDir),
	}

	log.Debugf("PathResolver initialized: exec=%s, configDir=%s", execPath, pr.configDir)
	return pr, nil
}

// ConfigDirFor returns the platform config directory below homeDir.
func ConfigDirFor(homeDir string) string {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, AppDirName)
		}
		return filepath.Join(homeDir, ".config", AppDirName)
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppDirName)
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppDirName)
	default:
		return filepath.Join(homeDir, ".config", AppDirName)
	}
}

// GetDataPath resolves a data file (SQLite database, seed file).
// Absolute paths are returned unchanged; relative paths are tried against the
// working directory, the executable directory and the config data directory,
// and the first existing candidate wins. When none exists the path is placed
// under DataDir.
func (pr *PathResolver) GetDataPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, path))
	}
	candidates = append(candidates,
		filepath.Join(pr.executableDir, path),
		filepath.Join(pr.DataDir(), path),
	)

	for _, candidate := range candidates {
		if FileExists(candidate) {
			log.Debugf("Resolved data path %s -> %s", path, candidate)
			return candidate
		}
	}
	return filepath.Join(pr.DataDir(), path)
}

// DataDir is where relative data paths land when no candidate exists.
func (pr *PathResolver) DataDir() string {
	return filepath.Join(pr.configDir, "data")
}
