package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neuro-mcq/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// Source describes one import file and the defaults applied to its items.
type Source struct {
	Path         string `yaml:"path"`
	Subspecialty string `yaml:"subspecialty"`
	ExamType     string `yaml:"exam_type"`
	ExamYear     string `yaml:"exam_year"`
}

type Manifest struct {
	Sources []Source `yaml:"sources"`
}

// LoadManifest reads a YAML manifest. Relative source paths are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i, s := range m.Sources {
		if strings.TrimSpace(s.Path) == "" {
			return nil, fmt.Errorf("manifest %s: source %d has no path", path, i+1)
		}
		if !filepath.IsAbs(s.Path) {
			m.Sources[i].Path = filepath.Join(base, s.Path)
		}
	}
	return &m, nil
}

// Apply fills empty fields of m from the source defaults.
func (s Source) Apply(m *models.MCQ) {
	if m.Subspecialty == "" && s.Subspecialty != "" {
		m.Subspecialty = s.Subspecialty
	}
	if m.ExamType == "" && s.ExamType != "" {
		m.ExamType = models.NormalizeExamType(s.ExamType)
	}
	if m.ExamYear == "" && s.ExamYear != "" {
		m.ExamYear = s.ExamYear
	}
	if m.SourceFile == "" {
		m.SourceFile = filepath.Base(s.Path)
	}
}
