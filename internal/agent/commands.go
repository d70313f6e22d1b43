package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/osamaelmahalawi/zeph/internal/mcp"
	"github.com/osamaelmahalawi/zeph/internal/skills"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// dispatchCommand routes slash commands to their handlers. Returns
// handled=false when the text is not a recognized command, in which
// case the turn proceeds to the provider.
func (e *Engine) dispatchCommand(ctx context.Context, text string) (bool, error) {
	if !strings.HasPrefix(text, "/") {
		return false, nil
	}
	fields := strings.Fields(text)
	switch fields[0] {
	case "/skills":
		return true, e.cmdSkillsList(ctx)
	case "/skill":
		return true, e.cmdSkill(ctx, fields[1:])
	case "/mcp":
		return true, e.cmdMCP(ctx, fields[1:])
	case "/feedback":
		return true, e.cmdFeedback(ctx, strings.TrimSpace(strings.TrimPrefix(text, "/feedback")))
	case "/reset":
		return true, e.cmdReset(ctx)
	default:
		return false, nil
	}
}

func (e *Engine) cmdSkillsList(ctx context.Context) error {
	if e.registry == nil {
		e.notify(ctx, "no skill registry configured")
		return nil
	}
	all := e.registry.All()
	if len(all) == 0 {
		e.notify(ctx, "no skills installed")
		return nil
	}

	var out strings.Builder
	out.WriteString("Installed skills:\n")
	for _, skill := range all {
		level, _, err := e.trustDB.SkillTrust(ctx, skill.Name)
		trust := "unknown"
		if err == nil {
			trust = level.String()
		}
		fmt.Fprintf(&out, "  %-20s [%s] %s\n", skill.Name, trust, skill.Description)
	}
	e.notify(ctx, strings.TrimRight(out.String(), "\n"))
	return nil
}

func (e *Engine) cmdSkill(ctx context.Context, args []string) error {
	if len(args) < 1 {
		e.notify(ctx, "usage: /skill install|remove|trust|block|unblock <name>")
		return nil
	}
	sub := args[0]

	switch sub {
	case "install":
		if len(args) < 2 {
			e.notify(ctx, "usage: /skill install <dir>")
			return nil
		}
		skill, err := skills.ParseSkillDir(args[1])
		if err != nil {
			e.notify(ctx, fmt.Sprintf("install failed: %v", err))
			return nil
		}
		// New installs start quarantined until the user trusts them.
		if err := e.trustDB.SetSkillTrust(ctx, skill.Name, models.TrustQuarantined, skill.Hash); err != nil {
			return err
		}
		e.registry.Reload()
		e.resyncMatcher(ctx)
		e.notify(ctx, fmt.Sprintf("installed %s (quarantined; use /skill trust %s to promote)", skill.Name, skill.Name))
		return nil

	case "remove", "trust", "block", "unblock":
		if len(args) < 2 {
			e.notify(ctx, fmt.Sprintf("usage: /skill %s <name>", sub))
			return nil
		}
		name := args[1]
		skill, ok := e.registry.Get(name)
		if !ok {
			e.notify(ctx, fmt.Sprintf("skill %s not found", name))
			return nil
		}
		switch sub {
		case "remove":
			// The directory stays on disk; the skill is blocked so it
			// never activates again.
			if err := e.trust.SetTrust(ctx, skill, models.TrustBlocked); err != nil {
				return err
			}
			e.notify(ctx, fmt.Sprintf("removed (blocked) %s", name))
		case "trust":
			if err := e.trust.SetTrust(ctx, skill, models.TrustTrusted); err != nil {
				return err
			}
			e.notify(ctx, fmt.Sprintf("%s is now trusted", name))
		case "block":
			if err := e.trust.SetTrust(ctx, skill, models.TrustBlocked); err != nil {
				return err
			}
			e.notify(ctx, fmt.Sprintf("%s is now blocked", name))
		case "unblock":
			if err := e.trust.SetTrust(ctx, skill, models.TrustQuarantined); err != nil {
				return err
			}
			e.notify(ctx, fmt.Sprintf("%s is now quarantined (use /skill trust to promote)", name))
		}
		return nil

	default:
		e.notify(ctx, "usage: /skill install|remove|trust|block|unblock <name>")
		return nil
	}
}

func (e *Engine) resyncMatcher(ctx context.Context) {
	if e.matcher == nil {
		return
	}
	if err := e.matcher.Sync(ctx, e.registry.All()); err != nil {
		e.notify(ctx, fmt.Sprintf("skill matcher resync failed: %v", err))
	}
}

func (e *Engine) cmdMCP(ctx context.Context, args []string) error {
	if e.mcp == nil {
		e.notify(ctx, "MCP support is not configured")
		return nil
	}
	if len(args) < 1 {
		e.notify(ctx, "usage: /mcp add|list|tools|remove")
		return nil
	}

	switch args[0] {
	case "list":
		servers := e.mcp.Servers()
		if len(servers) == 0 {
			e.notify(ctx, "no MCP servers registered")
			return nil
		}
		e.notify(ctx, "MCP servers: "+strings.Join(servers, ", "))
		return nil

	case "tools":
		infos := e.mcp.Tools()
		if len(infos) == 0 {
			e.notify(ctx, "no MCP tools available")
			return nil
		}
		var out strings.Builder
		out.WriteString("MCP tools:\n")
		sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
		for _, info := range infos {
			fmt.Fprintf(&out, "  %s.%s - %s\n", info.Server, info.Name, info.Description)
		}
		e.notify(ctx, strings.TrimRight(out.String(), "\n"))
		return nil

	case "add":
		// /mcp add <name> <command> [args...]  or  /mcp add <name> <url>
		if len(args) < 3 {
			e.notify(ctx, "usage: /mcp add <name> <command|url> [args...]")
			return nil
		}
		cfg := mcp.ServerConfig{Name: args[1]}
		if strings.HasPrefix(args[2], "http://") || strings.HasPrefix(args[2], "https://") {
			cfg.URL = args[2]
		} else {
			cfg.Command = args[2]
			cfg.Args = args[3:]
		}
		if err := e.mcp.Add(ctx, cfg); err != nil {
			e.notify(ctx, fmt.Sprintf("mcp add failed: %v", err))
			return nil
		}
		e.notify(ctx, fmt.Sprintf("registered MCP server %s", cfg.Name))
		return nil

	case "remove":
		if len(args) < 2 {
			e.notify(ctx, "usage: /mcp remove <name>")
			return nil
		}
		if err := e.mcp.Remove(args[1]); err != nil {
			e.notify(ctx, fmt.Sprintf("mcp remove failed: %v", err))
			return nil
		}
		e.notify(ctx, fmt.Sprintf("removed MCP server %s", args[1]))
		return nil

	default:
		e.notify(ctx, "usage: /mcp add|list|tools|remove")
		return nil
	}
}

func (e *Engine) cmdFeedback(ctx context.Context, body string) error {
	if body == "" {
		e.notify(ctx, "usage: /feedback <text>")
		return nil
	}
	if err := e.ensureConversation(ctx); err != nil {
		return err
	}
	if _, err := e.store.SaveMessage(ctx, e.conv, models.RoleSystem, "user feedback: "+body, nil); err != nil {
		return err
	}
	e.notify(ctx, "feedback recorded, thank you")
	return nil
}

func (e *Engine) cmdReset(ctx context.Context) error {
	// The old conversation stays persisted; the engine simply starts a
	// fresh one on the next turn.
	e.conv = 0
	e.gate.SetEffectiveTrust(models.TrustTrusted)
	e.notify(ctx, "conversation reset")
	return nil
}
