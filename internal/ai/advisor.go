package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ResponseGeneral    = "general"
	ResponseInvestment = "investment"

	fallbackText     = "Error generating AI response."
	fallbackInfo     = "Parsing failed"
	defaultChartJSON = `{"labels":[],"data":[]}`
)

const advisorInstruction = `You are InvestoCrafy, an assistant for investment and startup guidance.
Answer in English whatever the input language.
Reply with a single JSON object and nothing else, with these keys:
"responseType": "investment" for anything about investments, startups, companies, finance or markets, otherwise "general";
"text": a clear summary with insights and recommendations;
"component": for investment answers only, a JSON tree describing a "Preview" page with charts matching chartValues;
"chartValues": {"labels": [...], "data": [...]};
"investorURL": a relevant URL if one is known;
"additionalInfo": any further notes.`

var investmentHint = regexp.MustCompile(`(?i)invest|startup|company|financial|portfolio|market`)

// Advice is the structured answer to one prompt. Component and ChartValues
// are opaque JSON relayed to the client untouched.
type Advice struct {
	ResponseType   string          `json:"responseType"`
	Text           string          `json:"text"`
	Component      json.RawMessage `json:"component"`
	ChartValues    json.RawMessage `json:"chartValues"`
	InvestorURL    string          `json:"investorURL"`
	AdditionalInfo string          `json:"additionalInfo"`
}

// ClassifyPrompt guesses the response type from keywords in the prompt.
func ClassifyPrompt(prompt string) string {
	if investmentHint.MatchString(prompt) {
		return ResponseInvestment
	}
	return ResponseGeneral
}

// FallbackAdvice is returned when the model fails or its output cannot be
// parsed.
func FallbackAdvice(prompt, reason string) Advice {
	if reason == "" {
		reason = fallbackInfo
	}
	return Advice{
		ResponseType:   ClassifyPrompt(prompt),
		Text:           fallbackText,
		Component:      json.RawMessage("null"),
		ChartValues:    json.RawMessage(defaultChartJSON),
		AdditionalInfo: reason,
	}
}

// AdvisorGenerator turns a prompt into Advice using a registered provider.
type AdvisorGenerator struct {
	registry *Registry
	provider string
	model    string
	log      zerolog.Logger
}

func NewAdvisorGenerator(registry *Registry, provider, model string, log zerolog.Logger) *AdvisorGenerator {
	return &AdvisorGenerator{registry: registry, provider: provider, model: model, log: log}
}

// Generate never fails on model errors; those degrade to FallbackAdvice.
// Only a cancelled context is returned as an error.
func (g *AdvisorGenerator) Generate(ctx context.Context, prompt string) (Advice, error) {
	p, err := g.registry.Get(ctx, g.provider, g.model)
	if err != nil {
		g.log.Error().Err(err).Str("provider", g.provider).Msg("ai provider unavailable")
		return FallbackAdvice(prompt, err.Error()), nil
	}

	raw, err := p.Chat(ctx, []Message{
		{Role: RoleSystem, Content: advisorInstruction},
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		if ctx.Err() != nil {
			return Advice{}, ctx.Err()
		}
		g.log.Error().Err(err).Str("provider", g.provider).Msg("ai generation failed")
		return FallbackAdvice(prompt, err.Error()), nil
	}

	advice, ok := ParseAdvice(raw, prompt)
	if !ok {
		g.log.Warn().Str("provider", g.provider).Int("raw_len", len(raw)).Msg("ai output not parseable")
	}
	return advice, nil
}

var (
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([a-zA-Z0-9_]+)\s*:`)
	singleQuoted  = regexp.MustCompile(`:\s*'([^']*)'`)
)

// ParseAdvice extracts Advice from model output. It tolerates prose or code
// fences around the JSON object and repairs trailing commas, bare keys and
// single-quoted values. Missing fields are defaulted; ok is false when no
// object could be decoded at all.
func ParseAdvice(raw, prompt string) (Advice, bool) {
	fields, ok := decodeLenient(raw)
	if !ok {
		return FallbackAdvice(prompt, ""), false
	}

	out := Advice{
		ResponseType:   stringField(fields, "responseType"),
		Text:           stringField(fields, "text"),
		Component:      rawField(fields, "component"),
		ChartValues:    rawField(fields, "chartValues"),
		InvestorURL:    stringField(fields, "investorURL"),
		AdditionalInfo: stringField(fields, "additionalInfo"),
	}
	if out.ResponseType != ResponseGeneral && out.ResponseType != ResponseInvestment {
		out.ResponseType = ClassifyPrompt(prompt)
	}
	if out.Text == "" {
		out.Text = fallbackText
	}
	if out.Component == nil {
		out.Component = json.RawMessage("null")
	}
	if out.ChartValues == nil {
		out.ChartValues = json.RawMessage(defaultChartJSON)
	}
	return out, true
}

func decodeLenient(raw string) (map[string]json.RawMessage, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	body := raw[start : end+1]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err == nil {
		return fields, true
	}

	body = trailingComma.ReplaceAllString(body, "$1")
	body = bareKey.ReplaceAllString(body, `$1"$2":`)
	body = singleQuoted.ReplaceAllString(body, `: "$1"`)
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if v, ok := fields[key]; ok {
		_ = json.Unmarshal(v, &s)
	}
	return strings.TrimSpace(s)
}

// rawField drops empty values: null, "" and whitespace.
func rawField(fields map[string]json.RawMessage, key string) json.RawMessage {
	v, ok := fields[key]
	if !ok {
		return nil
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) || bytes.Equal(v, []byte(`""`)) {
		return nil
	}
	return v
}
