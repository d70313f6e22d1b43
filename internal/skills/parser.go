package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// frontmatter mirrors the SKILL.md YAML header.
type frontmatter struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Compatibility string            `yaml:"compatibility"`
	License       string            `yaml:"license"`
	Metadata      map[string]string `yaml:"metadata"`
	AllowedTools  []string          `yaml:"allowed_tools"`
}

// ParseSkillDir loads the skill at dir from its SKILL.md file and
// computes the directory content hash.
func ParseSkillDir(dir string) (*Skill, error) {
	path := filepath.Join(dir, "SKILL.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var meta frontmatter
	if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
		return nil, fmt.Errorf("parse %s frontmatter: %w", path, err)
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("parse %s: missing name", path)
	}
	if meta.Description == "" {
		return nil, fmt.Errorf("parse %s: missing description", path)
	}

	hash, err := ComputeSkillHash(dir)
	if err != nil {
		return nil, err
	}

	return &Skill{
		Name:          meta.Name,
		Description:   meta.Description,
		Body:          strings.TrimSpace(body),
		Compatibility: meta.Compatibility,
		License:       meta.License,
		Metadata:      meta.Metadata,
		AllowedTools:  meta.AllowedTools,
		Hash:          hash,
		Dir:           dir,
		Source:        models.SkillSource{Kind: models.SourceLocal, Path: dir},
	}, nil
}

// splitFrontmatter separates the leading --- delimited YAML block from
// the markdown body.
func splitFrontmatter(content string) (fm, body string, err error) {
	trimmed := strings.TrimLeft(content, "\ufeff\n\r")
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", fmt.Errorf("missing frontmatter block")
	}
	rest := strings.TrimPrefix(trimmed, "---")
	rest = strings.TrimPrefix(rest, "\n")
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated frontmatter block")
	}
	fm = rest[:idx]
	body = rest[idx+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return fm, body, nil
}
