// Package skills loads, matches, and trust-gates skill bundles: named
// instruction sets discovered from SKILL.md directories.
package skills

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lukechampine.com/blake3"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// Skill is one loaded skill bundle.
type Skill struct {
	Name          string
	Description   string
	Body          string
	Compatibility string
	License       string
	Metadata      map[string]string
	AllowedTools  []string

	// Hash is the blake3 content hash of the skill directory.
	Hash string

	// Dir is the directory the skill was loaded from.
	Dir string

	Source models.SkillSource
}

// CompatibleWith reports whether the skill runs on the given OS
// family. An empty compatibility field means all platforms.
func (s *Skill) CompatibleWith(osFamily string) bool {
	if s.Compatibility == "" || s.Compatibility == "all" {
		return true
	}
	return s.Compatibility == osFamily
}

// ComputeSkillHash hashes every regular file under dir in sorted path
// order with blake3. Identical bytes always produce the same hash.
func ComputeSkillHash(dir string) (string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk skill dir %s: %w", dir, err)
	}
	sort.Strings(files)

	hasher := blake3.New(32, nil)
	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		hasher.Write([]byte(rel))
		hasher.Write([]byte{0})
		hasher.Write(data)
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// EffectiveTrust is the max-severity trust level across an active
// skill set. An empty set is Trusted.
func EffectiveTrust(levels []models.TrustLevel) models.TrustLevel {
	effective := models.TrustTrusted
	for _, l := range levels {
		effective = models.MaxSeverity(effective, l)
	}
	return effective
}
