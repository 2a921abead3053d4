package forecast

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vladimiradmaev/diabetes-backend/internal/logger"
)

// Artifact kinds understood by the manifest.
const (
	KindLSTM = "lstm"
	KindGBT  = "gbt"
)

// Manifest lists the model artifacts to load at startup.
type Manifest struct {
	Backends []ManifestEntry `yaml:"backends"`
}

// ManifestEntry describes one artifact. Relative paths resolve against the
// manifest's directory.
type ManifestEntry struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Path    string `yaml:"path"`
	Enabled *bool  `yaml:"enabled"`
}

// LoadManifest parses a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// LoadBackends returns the simple backend followed by every artifact in the
// manifest that loads. A missing manifest or a broken artifact is logged and
// skipped; running with only the simple backend is a normal mode.
func LoadBackends(manifestPath string) []Backend {
	backends := []Backend{NewSimpleBackend()}
	if manifestPath == "" {
		return backends
	}

	m, err := LoadManifest(manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("No model manifest found, using simple backend only", "path", manifestPath)
		} else {
			logger.Warn("Failed to load model manifest", "path", manifestPath, "error", err)
		}
		return backends
	}

	seen := map[string]bool{ModelSimple: true}
	dir := filepath.Dir(manifestPath)
	for _, entry := range m.Backends {
		if entry.Enabled != nil && !*entry.Enabled {
			continue
		}
		b, err := loadEntry(dir, entry)
		if err != nil {
			logger.Warn("Prediction backend unavailable",
				"name", entry.Name, "kind", entry.Kind, "path", entry.Path, "error", err)
			continue
		}
		if seen[b.Name()] {
			logger.Warn("Duplicate prediction backend ignored", "name", b.Name())
			continue
		}
		seen[b.Name()] = true
		backends = append(backends, b)
		logger.Info("Prediction backend loaded", "name", b.Name(), "kind", entry.Kind)
	}
	return backends
}

func loadEntry(dir string, entry ManifestEntry) (Backend, error) {
	path := entry.Path
	if path == "" {
		return nil, fmt.Errorf("missing path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	// legacy names resolve the same way requests do
	name := ""
	if strings.TrimSpace(entry.Name) != "" {
		name = NormalizeModel(entry.Name)
		if name == ModelEnsemble || name == ModelSimple {
			return nil, fmt.Errorf("reserved backend name %q", entry.Name)
		}
	}

	switch entry.Kind {
	case KindLSTM:
		return LoadSequenceBackend(name, path)
	case KindGBT:
		return LoadTreeBackend(name, path)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", entry.Kind)
	}
}
