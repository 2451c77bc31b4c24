// Package agent defines the role-scoped analysts that answer queries over
// retrieved document context. Each agent has fixed instructions and an
// optional web search tool; the model and retrieval plumbing are shared.
package agent

import (
	"context"
	"log/slog"

	"github.com/counselai/counsel/internal/llm"
	"github.com/counselai/counsel/internal/retrieval"
	"github.com/counselai/counsel/internal/websearch"
)

// Role identifies one member of the analysis team.
type Role string

const (
	RoleResearcher Role = "Legal Researcher"
	RoleAnalyst    Role = "Contract Analyst"
	RoleStrategist Role = "Legal Strategist"
	RoleLead       Role = "Team Lead"
)

// roleInstructions holds each role's fixed system prompt.
var roleInstructions = map[Role]string{
	RoleResearcher: "You are a legal researcher. Find and cite relevant legal cases, " +
		"statutes and precedents. Provide detailed research summaries with sources. " +
		"Always reference specific sections from the provided document context.",
	RoleAnalyst: "You are a contract analyst. Review contracts thoroughly. Identify " +
		"key terms, obligations and potential issues. Reference specific clauses " +
		"from the provided document context.",
	RoleStrategist: "You are a legal strategist. Develop comprehensive legal " +
		"strategies, provide actionable recommendations and assess risks, grounded " +
		"in the provided document context.",
	RoleLead: "You are the team lead of a legal analysis team. Integrate the " +
		"specialists' findings into one coherent, well-sourced response. Preserve " +
		"their document references and flag any disagreements between them.",
}

// usesWebSearch marks roles that consult live web results.
var usesWebSearch = map[Role]bool{
	RoleResearcher: true,
}

// Instructions returns the role's system prompt, or "" for an unknown role.
func (r Role) Instructions() string { return roleInstructions[r] }

// ChatClient is the slice of the model client an Agent needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error)
}

// Searcher is the web search tool interface.
type Searcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// Agent is one role-scoped analyst.
type Agent struct {
	role     Role
	chat     ChatClient
	search   Searcher
	composer *composer
	logger   *slog.Logger
}

// New creates an Agent. search may be nil; it is only consulted for roles
// that use web research.
func New(role Role, chat ChatClient, search Searcher, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		role:     role,
		chat:     chat,
		search:   search,
		composer: newComposer(0),
		logger:   logger,
	}
}

// Role returns the agent's role.
func (a *Agent) Role() Role { return a.role }

// Run answers the query from the agent's perspective, grounded on the
// retrieved chunks. Web-enabled roles fetch live results first; a web search
// failure is logged and skipped rather than failing the run, since the
// document context alone still supports an answer.
func (a *Agent) Run(ctx context.Context, query string, chunks []retrieval.ContextChunk) (string, error) {
	var web []websearch.Result
	if usesWebSearch[a.role] && a.search != nil {
		results, err := a.search.Search(ctx, query)
		if err != nil {
			a.logger.Warn("web search failed, continuing without it",
				"role", string(a.role), "error", err)
		} else {
			web = results
		}
	}

	system := a.role.Instructions()
	if enrichment := a.composer.buildEnrichment(chunks, web); enrichment != "" {
		system += "\n\n" + enrichment
	}

	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: query},
	}

	a.logger.Debug("running agent", "role", string(a.role), "chunks", len(chunks), "web_results", len(web))
	return a.chat.Chat(ctx, messages, llm.ChatOptions{})
}
