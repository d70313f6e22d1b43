package mcp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// EmbedFunc produces an embedding for text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Manager holds the dynamic MCP server set, bounded by maxServers.
// Add and remove are serialized; tool lookups take a snapshot.
type Manager struct {
	maxServers   int
	extraAllowed []string
	embed        EmbedFunc

	mu      sync.Mutex
	servers map[string]*serverEntry
}

type serverEntry struct {
	client *Client
	tools  []ToolInfo

	// descVectors are precomputed embeddings of tool descriptions,
	// parallel to tools. Entries may be nil when embedding failed.
	descVectors [][]float32
}

// NewManager creates an empty manager. embed may be nil, in which case
// MatchTools falls back to substring scoring.
func NewManager(maxServers int, extraAllowed []string, embed EmbedFunc) *Manager {
	if maxServers <= 0 {
		maxServers = 8
	}
	return &Manager{
		maxServers:   maxServers,
		extraAllowed: extraAllowed,
		embed:        embed,
		servers:      make(map[string]*serverEntry),
	}
}

// Add connects a new server, lists its tools, and registers it.
func (m *Manager) Add(ctx context.Context, cfg ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.servers) >= m.maxServers {
		return fmt.Errorf("mcp: server limit reached (%d)", m.maxServers)
	}
	if _, exists := m.servers[cfg.Name]; exists {
		return fmt.Errorf("mcp: server %s already registered", cfg.Name)
	}

	client, err := Connect(ctx, cfg, m.extraAllowed, 0)
	if err != nil {
		return err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return err
	}

	entry := &serverEntry{client: client, tools: tools}
	if m.embed != nil {
		entry.descVectors = make([][]float32, len(tools))
		for i, tool := range tools {
			vec, err := m.embed(ctx, tool.Description)
			if err == nil {
				entry.descVectors[i] = vec
			}
		}
	}
	m.servers[cfg.Name] = entry
	return nil
}

// Remove disconnects and forgets a server.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.servers[name]
	if !ok {
		return fmt.Errorf("mcp: server %s not registered", name)
	}
	delete(m.servers, name)
	return entry.client.Close()
}

// Servers lists registered server names.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools lists every advertised tool across servers.
func (m *Manager) Tools() []ToolInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ToolInfo
	for _, entry := range m.servers {
		out = append(out, entry.tools...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Call routes a tool invocation to the owning server.
func (m *Manager) Call(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	m.mu.Lock()
	entry, ok := m.servers[server]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("mcp: server %s not registered", server)
	}
	return entry.client.CallTool(ctx, tool, args)
}

// MatchTools returns the top-K tools semantically closest to the
// query. Without an embedder it scores by shared lowercase words.
func (m *Manager) MatchTools(ctx context.Context, query string, topK int) ([]ToolInfo, error) {
	type scored struct {
		tool  ToolInfo
		score float64
	}

	m.mu.Lock()
	var candidates []scored
	if m.embed != nil {
		queryVec, err := m.embed(ctx, query)
		if err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("mcp: embed query: %w", err)
		}
		for _, entry := range m.servers {
			for i, tool := range entry.tools {
				if entry.descVectors == nil || entry.descVectors[i] == nil {
					continue
				}
				candidates = append(candidates, scored{tool: tool, score: cosine(queryVec, entry.descVectors[i])})
			}
		}
	} else {
		queryWords := strings.Fields(strings.ToLower(query))
		for _, entry := range m.servers {
			for _, tool := range entry.tools {
				desc := strings.ToLower(tool.Description + " " + tool.Name)
				score := 0.0
				for _, w := range queryWords {
					if strings.Contains(desc, w) {
						score++
					}
				}
				candidates = append(candidates, scored{tool: tool, score: score})
			}
		}
	}
	m.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]ToolInfo, topK)
	for i := 0; i < topK; i++ {
		out[i] = candidates[i].tool
	}
	return out, nil
}

// FormatToolBlock renders matched tools as the system prompt block
// appended after MCP matching. Empty input yields "".
func FormatToolBlock(tools []ToolInfo) string {
	if len(tools) == 0 {
		return ""
	}
	var out strings.Builder
	out.WriteString("<mcp_tools>\n")
	for _, tool := range tools {
		fmt.Fprintf(&out, "  <tool server=%q name=%q>%s</tool>\n", tool.Server, tool.Name, tool.Description)
	}
	out.WriteString("</mcp_tools>")
	return out.String()
}

// Close disconnects every server.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, entry := range m.servers {
		entry.client.Close()
		delete(m.servers, name)
	}
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
