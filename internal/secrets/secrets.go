// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads contact addresses and credentials from a directory
// of plain-text files, one value per file: the file name is the key and the
// trimmed contents are the value.
//
// Recognized keys: crossref-mailto, openalex-email, semantic-scholar-api-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// Key files read by paperfetch.
const (
	CrossRefMailto = "crossref-mailto"
	OpenAlexEmail  = "openalex-email"
	ScholarAPIKey  = "semantic-scholar-api-key"
)

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads every regular, non-hidden file in dir. A missing directory
// yields an empty set; unreadable files are logged and skipped.
func Load(dir string, log *slog.Logger) (Secrets, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	out := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			out[name] = value
		}
	}
	return out, nil
}

// Apply fills the polite-pool contact address and the Semantic Scholar key
// from the secrets where the configuration left them empty. crossref-mailto
// wins over openalex-email.
func (s Secrets) Apply(cfg *types.HTTPConfig) {
	if cfg.ScholarAPIKey == "" {
		cfg.ScholarAPIKey = s[ScholarAPIKey]
	}
	if cfg.Mailto != "" {
		return
	}
	for _, key := range []string{CrossRefMailto, OpenAlexEmail} {
		if v := s[key]; v != "" {
			cfg.Mailto = v
			return
		}
	}
}
