// Package team coordinates the role-scoped agents into a single analysis.
// A run retrieves document context once, fans it out to the mode's assigned
// specialists, and has the team lead merge their findings before deriving
// key points and recommendations from the merged analysis.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/counselai/counsel/internal/agent"
	"github.com/counselai/counsel/internal/fault"
	"github.com/counselai/counsel/internal/llm"
	"github.com/counselai/counsel/internal/retrieval"
)

// Mode selects which specialists run and what they are asked.
type Mode string

const (
	ModeContractReview  Mode = "contract-review"
	ModeLegalResearch   Mode = "legal-research"
	ModeRiskAssessment  Mode = "risk-assessment"
	ModeComplianceCheck Mode = "compliance-check"
	ModeCustom          Mode = "custom"
)

type modeSpec struct {
	roles []agent.Role
	query string
}

var modeSpecs = map[Mode]modeSpec{
	ModeContractReview: {
		roles: []agent.Role{agent.RoleAnalyst},
		query: "Review this contract and identify key terms, obligations, and potential issues.",
	},
	ModeLegalResearch: {
		roles: []agent.Role{agent.RoleResearcher},
		query: "Research relevant cases and precedents related to this document.",
	},
	ModeRiskAssessment: {
		roles: []agent.Role{agent.RoleAnalyst, agent.RoleStrategist},
		query: "Analyze potential legal risks and liabilities in this document.",
	},
	ModeComplianceCheck: {
		roles: []agent.Role{agent.RoleResearcher, agent.RoleAnalyst, agent.RoleStrategist},
		query: "Check this document for regulatory compliance issues and obligations.",
	},
	ModeCustom: {
		roles: []agent.Role{agent.RoleResearcher, agent.RoleAnalyst, agent.RoleStrategist},
	},
}

// ParseMode validates a mode name from the API or CLI.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if _, ok := modeSpecs[m]; !ok {
		return "", fault.New(fault.KindConfiguration, "team.mode", "unknown analysis mode %q", s)
	}
	return m, nil
}

// Modes lists the supported mode names.
func Modes() []string {
	return []string{
		string(ModeContractReview),
		string(ModeLegalResearch),
		string(ModeRiskAssessment),
		string(ModeComplianceCheck),
		string(ModeCustom),
	}
}

// Result is a completed (or partially completed) analysis. Analysis is
// always set on success of the first stage; KeyPoints and Recommendations
// may be empty when a later stage failed.
type Result struct {
	Mode            Mode
	Query           string
	Analysis        string
	KeyPoints       string
	Recommendations string
}

// Retriever fetches document context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.ContextChunk, error)
}

// Runner is the coordinator's view of one specialist agent.
type Runner interface {
	Role() agent.Role
	Run(ctx context.Context, query string, chunks []retrieval.ContextChunk) (string, error)
}

// Coordinator owns the specialist roster and the lead model client.
type Coordinator struct {
	retriever Retriever
	runners   map[agent.Role]Runner
	chat      agent.ChatClient
	logger    *slog.Logger
}

// New creates a Coordinator. runners must cover every role referenced by the
// mode table; chat is used for the lead merge and the derivation stages.
func New(retriever Retriever, runners []Runner, chat agent.ChatClient, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	byRole := make(map[agent.Role]Runner, len(runners))
	for _, r := range runners {
		byRole[r.Role()] = r
	}
	return &Coordinator{retriever: retriever, runners: byRole, chat: chat, logger: logger}
}

// Run executes the full three-stage analysis. When a derivation stage fails,
// the stages that already completed are kept in the returned Result next to
// the error, so callers can persist the partial output.
func (c *Coordinator) Run(ctx context.Context, mode Mode, customQuery string) (*Result, error) {
	spec, ok := modeSpecs[mode]
	if !ok {
		return nil, fault.New(fault.KindConfiguration, "team.run", "unknown analysis mode %q", mode)
	}

	query := spec.query
	if mode == ModeCustom {
		query = strings.TrimSpace(customQuery)
		if query == "" {
			return nil, fault.New(fault.KindConfiguration, "team.run", "custom analysis requires a query")
		}
	}

	chunks, err := c.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	c.logger.Info("analysis started", "mode", string(mode), "roles", len(spec.roles), "chunks", len(chunks))

	sections := make([]section, 0, len(spec.roles))
	for _, role := range spec.roles {
		runner, ok := c.runners[role]
		if !ok {
			return nil, fault.New(fault.KindConfiguration, "team.run", "no agent registered for role %q", role)
		}
		content, err := runner.Run(ctx, query, chunks)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		sections = append(sections, section{role: role, content: content})
	}

	analysis, err := c.merge(ctx, query, sections)
	if err != nil {
		return nil, err
	}
	result := &Result{Mode: mode, Query: query, Analysis: analysis}

	result.KeyPoints, err = c.Summarize(ctx, analysis)
	if err != nil {
		return result, fmt.Errorf("deriving key points: %w", err)
	}

	result.Recommendations, err = c.Recommend(ctx, analysis)
	if err != nil {
		return result, fmt.Errorf("deriving recommendations: %w", err)
	}

	return result, nil
}

type section struct {
	role    agent.Role
	content string
}

// merge has the team lead integrate the specialists' sections. A single
// section still goes through the lead so the output register is uniform
// across modes.
func (c *Coordinator) merge(ctx context.Context, query string, sections []section) (string, error) {
	var sb strings.Builder
	sb.WriteString("Original request: ")
	sb.WriteString(query)
	sb.WriteString("\n\nSpecialist findings follow. Integrate them into one coherent analysis, ")
	sb.WriteString("keeping every document reference and citing which specialist each point came from.\n")
	for _, s := range sections {
		sb.WriteString("\n## ")
		sb.WriteString(string(s.role))
		sb.WriteString("\n")
		sb.WriteString(s.content)
		sb.WriteString("\n")
	}

	messages := []llm.Message{
		{Role: "system", Content: agent.RoleLead.Instructions()},
		{Role: "user", Content: sb.String()},
	}
	return c.chat.Chat(ctx, messages, llm.ChatOptions{})
}

// Summarize derives the key points of an existing analysis. It never
// re-retrieves document context; the analysis text is the only input.
func (c *Coordinator) Summarize(ctx context.Context, analysis string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: "Summarize the following legal analysis in bullet points. " +
			"Focus on the main takeaways a client needs to know. Be concise and professional."},
		{Role: "user", Content: analysis},
	}
	return c.chat.Chat(ctx, messages, llm.ChatOptions{})
}

// Recommend derives actionable recommendations from an existing analysis.
func (c *Coordinator) Recommend(ctx context.Context, analysis string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: "Based on the following legal analysis, provide specific " +
			"recommendations as a numbered list: actions to take, risks to address, and terms " +
			"to renegotiate. Be concrete and reference the analysis."},
		{Role: "user", Content: analysis},
	}
	return c.chat.Chat(ctx, messages, llm.ChatOptions{})
}
