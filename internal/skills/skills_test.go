package skills

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaelmahalawi/zeph/internal/memory"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

func writeSkill(t *testing.T, root, name, description, body string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "---\nname: " + name + "\ndescription: " + description + "\n---\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
	return dir
}

func TestParseSkillDir(t *testing.T) {
	root := t.TempDir()
	dir := writeSkill(t, root, "deploy", "Deploy the app", "Run the deploy script.")

	skill, err := ParseSkillDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "deploy", skill.Name)
	assert.Equal(t, "Deploy the app", skill.Description)
	assert.Equal(t, "Run the deploy script.", skill.Body)
	assert.NotEmpty(t, skill.Hash)
}

func TestParseSkillDirMissingName(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"),
		[]byte("---\ndescription: no name\n---\nbody"), 0o644))

	_, err := ParseSkillDir(dir)
	assert.Error(t, err)
}

func TestComputeSkillHashStable(t *testing.T) {
	root := t.TempDir()
	dir := writeSkill(t, root, "stable", "desc", "body")

	h1, err := ComputeSkillHash(dir)
	require.NoError(t, err)
	h2, err := ComputeSkillHash(dir)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Different bytes change the hash.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.md"), []byte("more"), 0o644))
	h3, err := ComputeSkillHash(dir)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestRegistryFingerprintChangesWithContent(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "one", "first skill", "body one")

	reg, err := NewRegistry([]string{root})
	require.NoError(t, err)
	fp1 := reg.Fingerprint()

	writeSkill(t, root, "two", "second skill", "body two")
	reg.Reload()
	fp2 := reg.Fingerprint()
	assert.NotEqual(t, fp1, fp2)
	assert.Len(t, reg.All(), 2)
}

func TestRegistryDropsUnparsableSkill(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "good", "works", "body")
	badDir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "SKILL.md"), []byte("no frontmatter"), 0o644))

	reg, err := NewRegistry([]string{root})
	require.NoError(t, err)
	require.Len(t, reg.All(), 1)
	assert.Equal(t, "good", reg.All()[0].Name)
}

// keywordEmbed maps texts containing a keyword onto distinct axes.
func keywordEmbed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, 3)
	for i, kw := range []string{"deploy", "test", "docs"} {
		if strings.Contains(lower, kw) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func TestInMemoryMatcherTopK(t *testing.T) {
	m := NewInMemoryMatcher(keywordEmbed)
	skills := []*Skill{
		{Name: "deployer", Description: "deploy services"},
		{Name: "tester", Description: "test suites"},
		{Name: "writer", Description: "docs authoring"},
	}
	require.NoError(t, m.Sync(context.Background(), skills))

	names, err := m.Match(context.Background(), "please deploy the app", 1)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "deployer", names[0])

	names, err = m.Match(context.Background(), "test things", 5)
	require.NoError(t, err)
	assert.Len(t, names, 3, "topK larger than catalog returns all")
	assert.Equal(t, "tester", names[0])
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
}

func TestFormatSkillsPrompt(t *testing.T) {
	root := t.TempDir()
	dir := writeSkill(t, root, "release", "Cut a release", "Tag and push.")
	refDir := filepath.Join(dir, "references")
	require.NoError(t, os.MkdirAll(refDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(refDir, "linux.md"), []byte("linux notes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(refDir, "windows.md"), []byte("windows notes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(refDir, "common.md"), []byte("common notes"), 0o644))

	skill, err := ParseSkillDir(dir)
	require.NoError(t, err)

	prompt := FormatSkillsPrompt([]*Skill{skill}, "linux")
	assert.Contains(t, prompt, "<available_skills>")
	assert.Contains(t, prompt, `<skill name="release">`)
	assert.Contains(t, prompt, "linux notes")
	assert.Contains(t, prompt, "common notes")
	assert.NotContains(t, prompt, "windows notes")

	assert.Empty(t, FormatSkillsPrompt(nil, "linux"))
}

func TestEffectiveTrust(t *testing.T) {
	assert.Equal(t, models.TrustTrusted, EffectiveTrust(nil))
	assert.Equal(t, models.TrustQuarantined, EffectiveTrust([]models.TrustLevel{
		models.TrustTrusted, models.TrustQuarantined, models.TrustVerified,
	}))
	assert.Equal(t, models.TrustBlocked, EffectiveTrust([]models.TrustLevel{
		models.TrustVerified, models.TrustBlocked,
	}))
}

func TestTrustManagerHashMismatchQuarantines(t *testing.T) {
	store, err := memory.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	mgr := NewTrustManager(store)
	skill := &Skill{Name: "audit", Hash: "currenthash"}

	require.NoError(t, store.SetSkillTrust(ctx, "audit", models.TrustTrusted, "oldhash12"))

	level, err := mgr.Resolve(ctx, skill)
	require.NoError(t, err)
	assert.Equal(t, models.TrustQuarantined, level)

	// The demotion is persisted with the new hash.
	stored, hash, err := store.SkillTrust(ctx, "audit")
	require.NoError(t, err)
	assert.Equal(t, models.TrustQuarantined, stored)
	assert.Equal(t, "currenthash", hash)
}

func TestTrustManagerBlockedRefusesActivation(t *testing.T) {
	store, err := memory.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	mgr := NewTrustManager(store)
	blocked := &Skill{Name: "danger", Hash: "h1"}
	require.NoError(t, store.SetSkillTrust(ctx, "danger", models.TrustBlocked, "h1"))

	_, err = mgr.ResolveSet(ctx, []*Skill{{Name: "fine", Hash: "h2"}, blocked})
	assert.ErrorIs(t, err, ErrActivationBlocked)
}
