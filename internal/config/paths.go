package config

import (
	"os"
	"path/filepath"
)

// Paths locates flowbridge's files. Everything lives under Base, which is
// $FLOWBRIDGE_HOME or ~/.flowbridge.
type Paths struct {
	Base   string
	Config string // config.yaml
	Env    string // .env, loaded before the config
	Data   string // sqlite database
	Logs   string // relative logging.file values land here
}

func ResolvePaths() (Paths, error) {
	base := os.Getenv("FLOWBRIDGE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, ".flowbridge")
	}
	return PathsUnder(base), nil
}

// PathsUnder lays out the standard files below base.
func PathsUnder(base string) Paths {
	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Env:    filepath.Join(base, ".env"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}
}

// EnsureDirs creates the base, data and log directories.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// StorePath returns cfg.Path, or flowbridge.db in the data directory.
func (p Paths) StorePath(cfg StoreConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "flowbridge.db")
}

// LogPath resolves a logging.file value. Relative names go under Logs.
func (p Paths) LogPath(file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.Logs, file)
}
