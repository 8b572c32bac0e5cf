package services

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Agent is an assistant persona selectable in the chat.
type Agent struct {
	ID           string `json:"id" toml:"id"`
	Name         string `json:"name" toml:"name"`
	Description  string `json:"description" toml:"description"`
	SystemPrompt string `json:"-" toml:"system_prompt"`
}

// DefaultAgentID is used when a chat request names no agent.
const DefaultAgentID = "tutor"

var defaultAgents = []Agent{
	{
		ID:          "tutor",
		Name:        "Tutor",
		Description: "Personalised, step by step explanations",
		SystemPrompt: "You are a patient tutor. Explain the material step by step, " +
			"check understanding with short questions and adapt to the reader's level.",
	},
	{
		ID:          "evaluator",
		Name:        "Evaluator",
		Description: "Assessment and detailed feedback",
		SystemPrompt: "You are an evaluator. Write questions or exercises about the material " +
			"when asked, and grade answers with specific feedback.",
	},
	{
		ID:          "counselor",
		Name:        "Counselor",
		Description: "Academic and personal guidance",
		SystemPrompt: "You are an academic counselor. Give supportive, practical guidance " +
			"grounded in the material the reader shares.",
	},
	{
		ID:          "planner",
		Name:        "Planner",
		Description: "Study plans and schedules",
		SystemPrompt: "You are a curriculum planner. Turn the material into study plans, " +
			"schedules and lists of resources.",
	},
	{
		ID:          "analyst",
		Name:        "Analyst",
		Description: "Data and trend analysis",
		SystemPrompt: "You are an analyst. Summarise figures, compare findings and point " +
			"out trends in the material.",
	},
}

// AgentCatalog is the ordered set of agents offered to users. The first
// agent is the default when DefaultAgentID is absent.
type AgentCatalog struct {
	agents []Agent
}

// DefaultAgentCatalog returns the built-in agents.
func DefaultAgentCatalog() *AgentCatalog {
	return &AgentCatalog{agents: append([]Agent(nil), defaultAgents...)}
}

type agentFile struct {
	Agents []Agent `toml:"agent"`
}

// LoadAgentCatalog reads [[agent]] tables from a TOML file. Every agent
// needs an id, a name and a system_prompt; ids must be unique.
func LoadAgentCatalog(path string) (*AgentCatalog, error) {
	var f agentFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("load agents from %s: %w", path, err)
	}
	if len(f.Agents) == 0 {
		return nil, fmt.Errorf("load agents from %s: no [[agent]] entries", path)
	}
	seen := make(map[string]bool, len(f.Agents))
	for k, a := range f.Agents {
		a.ID = strings.ToLower(strings.TrimSpace(a.ID))
		if a.ID == "" || a.Name == "" || strings.TrimSpace(a.SystemPrompt) == "" {
			return nil, fmt.Errorf("load agents from %s: agent #%d needs id, name and system_prompt", path, k+1)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("load agents from %s: duplicate agent %q", path, a.ID)
		}
		seen[a.ID] = true
		f.Agents[k] = a
	}
	return &AgentCatalog{agents: f.Agents}, nil
}

// List returns the agents in display order.
func (c *AgentCatalog) List() []Agent {
	return append([]Agent(nil), c.agents...)
}

// Find looks an agent up by id, case-insensitively. An empty id selects
// DefaultAgentID, or the first agent when the catalogue has no such entry.
func (c *AgentCatalog) Find(id string) (Agent, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		if a, ok := c.Find(DefaultAgentID); ok {
			return a, true
		}
		return c.agents[0], true
	}
	for _, a := range c.agents {
		if strings.EqualFold(a.ID, id) {
			return a, true
		}
	}
	return Agent{}, false
}
