package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/osamaelmahalawi/zeph/internal/memory"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// ErrActivationBlocked reports a skill set containing a Blocked member.
var ErrActivationBlocked = errors.New("skills: activation refused, set contains a blocked skill")

// TrustManager resolves the trust level of skills against the
// persisted trust store, quarantining on content-hash mismatch.
type TrustManager struct {
	store memory.TrustStore
}

// NewTrustManager wires trust resolution over the given store.
func NewTrustManager(store memory.TrustStore) *TrustManager {
	return &TrustManager{store: store}
}

// Resolve returns the trust level for one skill. When the stored
// content hash differs from the skill's current hash, the skill is
// demoted to Quarantined and the new state is persisted.
func (m *TrustManager) Resolve(ctx context.Context, skill *Skill) (models.TrustLevel, error) {
	level, storedHash, err := m.store.SkillTrust(ctx, skill.Name)
	if err != nil {
		return 0, err
	}
	if storedHash != "" && storedHash != skill.Hash {
		slog.Warn("skill content hash mismatch, quarantining",
			"skill", skill.Name, "stored", storedHash[:8], "current", skill.Hash[:8])
		if err := m.store.SetSkillTrust(ctx, skill.Name, models.TrustQuarantined, skill.Hash); err != nil {
			return 0, err
		}
		return models.TrustQuarantined, nil
	}
	return level, nil
}

// ResolveSet resolves the active set and returns its effective trust.
// Returns ErrActivationBlocked when any member is Blocked.
func (m *TrustManager) ResolveSet(ctx context.Context, active []*Skill) (models.TrustLevel, error) {
	levels := make([]models.TrustLevel, 0, len(active))
	for _, skill := range active {
		level, err := m.Resolve(ctx, skill)
		if err != nil {
			return 0, fmt.Errorf("resolve trust for %s: %w", skill.Name, err)
		}
		if level == models.TrustBlocked {
			return models.TrustBlocked, ErrActivationBlocked
		}
		levels = append(levels, level)
	}
	return EffectiveTrust(levels), nil
}

// SetTrust pins the trust level of a named skill.
func (m *TrustManager) SetTrust(ctx context.Context, skill *Skill, level models.TrustLevel) error {
	return m.store.SetSkillTrust(ctx, skill.Name, level, skill.Hash)
}
