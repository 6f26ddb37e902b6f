// Package judge implements the workflow's structured judgments and answer
// generation on top of an llm.LLMProvider.
package judge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"filings-rag-be/pkg/llm"
	"filings-rag-be/pkg/rag/port"
	"filings-rag-be/pkg/rag/state"
)

// maxGradedChars bounds the passage text sent to the relevance grader.
const maxGradedChars = 4000

type Judge struct {
	llm llm.LLMProvider
}

var _ port.Judge = (*Judge)(nil)

func New(provider llm.LLMProvider) *Judge {
	return &Judge{llm: provider}
}

func (j *Judge) ask(ctx context.Context, system, user string, opts ...llm.Option) (string, error) {
	opts = append([]llm.Option{llm.WithTemperature(0), llm.WithMaxTokens(256)}, opts...)
	return j.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, opts...)
}

func (j *Judge) askJSON(ctx context.Context, system, user string, v interface{}) error {
	raw, err := j.ask(ctx, system, user, llm.WithJSON())
	if err != nil {
		return err
	}
	return decodeJSON(raw, v)
}

func (j *Judge) askBinary(ctx context.Context, system, user string) (bool, error) {
	raw, err := j.ask(ctx, system, user, llm.WithJSON())
	if err != nil {
		return false, err
	}
	return parseBinary(raw)
}

func (j *Judge) Route(ctx context.Context, question, contextSummary string) (string, error) {
	var out struct {
		Datasource string `json:"datasource"`
	}
	user := questionBlock(question) + "\n<evidence>\n" + contextSummary + "\n</evidence>"
	if err := j.askJSON(ctx, routerSystem, user, &out); err != nil {
		return "", err
	}
	switch ds := strings.ToLower(strings.TrimSpace(out.Datasource)); ds {
	case state.RouteVectorstore, state.RouteWebSearch:
		return ds, nil
	default:
		return "", fmt.Errorf("%w: datasource %q", port.ErrUnparsable, out.Datasource)
	}
}

func (j *Judge) GradeRelevance(ctx context.Context, question, document string) (bool, error) {
	user := questionBlock(question) + "\n<document>\n" + truncate(document, maxGradedChars) + "\n</document>"
	return j.askBinary(ctx, relevanceSystem, user)
}

func (j *Judge) GradeHallucination(ctx context.Context, documents []state.Document, generation string) (bool, error) {
	user := documentsBlock(documents) + "\n<answer>\n" + generation + "\n</answer>"
	return j.askBinary(ctx, hallucinationSystem, user)
}

func (j *Judge) GradeAnswer(ctx context.Context, question, generation string) (bool, error) {
	user := questionBlock(question) + "\n<answer>\n" + generation + "\n</answer>"
	return j.askBinary(ctx, answerSystem, user)
}

func (j *Judge) ExtractCompany(ctx context.Context, question string) (string, error) {
	var out struct {
		Company string `json:"company"`
	}
	if err := j.askJSON(ctx, companySystem, questionBlock(question), &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Company), nil
}

func (j *Judge) AnalyzeCrossReference(ctx context.Context, question string) (state.CrossReference, error) {
	var out state.CrossReference
	if err := j.askJSON(ctx, crossReferenceSystem, questionBlock(question), &out); err != nil {
		return state.CrossReference{}, err
	}
	return out, nil
}

func (j *Judge) RewriteQuestion(ctx context.Context, question string) (string, error) {
	raw, err := j.ask(ctx, rewriteSystem, questionBlock(question))
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(raw), "\""), nil
}

func (j *Judge) ChooseSummaryStrategy(ctx context.Context, question string, sources []state.SourceType) (string, error) {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	var out struct {
		Strategy string `json:"strategy"`
	}
	user := questionBlock(question) + "\n<available_sources>" + strings.Join(names, ", ") + "</available_sources>"
	if err := j.askJSON(ctx, strategySystem, user, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Strategy), nil
}

// Generator writes answers.
type Generator struct {
	llm       llm.LLMProvider
	maxTokens int
}

var _ port.Generator = (*Generator)(nil)

func NewGenerator(provider llm.LLMProvider, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Generator{llm: provider, maxTokens: maxTokens}
}

func (g *Generator) Generate(ctx context.Context, question string, documents []state.Document) (string, error) {
	user := documentsBlock(documents) + "\n" + questionBlock(question)
	return g.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: generateSystem},
		{Role: "user", Content: user},
	}, llm.WithTemperature(0.2), llm.WithMaxTokens(g.maxTokens))
}

func (g *Generator) GenerateWithCitations(ctx context.Context, question string, sources map[state.SourceType][]state.Document, strategy string) (string, error) {
	order := make([]state.SourceType, 0, len(sources))
	for t := range sources {
		order = append(order, t)
	}
	sort.Slice(order, func(i, k int) bool { return order[i] < order[k] })

	user := sourcesBlock(sources, order) + "\n" + questionBlock(question)
	return g.llm.Chat(ctx, []llm.Message{
		{Role: "system", Content: fmt.Sprintf(citationSystem, strategy)},
		{Role: "user", Content: user},
	}, llm.WithTemperature(0.2), llm.WithMaxTokens(g.maxTokens))
}
