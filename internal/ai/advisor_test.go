package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type recordingProvider struct {
	last  []Message
	reply string
	err   error
}

func (p *recordingProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	_ = ctx
	p.last = append([]Message(nil), messages...)
	return p.reply, p.err
}

func newTestGenerator(p Provider) *AdvisorGenerator {
	reg := NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		_ = model
		return p, nil
	})
	return NewAdvisorGenerator(reg, "fake", "default", zerolog.Nop())
}

func TestParseAdvice_StrictJSON(t *testing.T) {
	raw := `{"responseType":"investment","text":"Acme looks strong","component":{"type":"Preview"},"chartValues":{"labels":["Y1"],"data":[3]},"investorURL":"https://acme.test","additionalInfo":"none"}`
	a, ok := ParseAdvice(raw, "Analyze Acme Corp")
	if !ok {
		t.Fatalf("expected ok")
	}
	if a.ResponseType != ResponseInvestment || a.Text != "Acme looks strong" {
		t.Fatalf("unexpected advice: %+v", a)
	}
	if string(a.Component) != `{"type":"Preview"}` {
		t.Fatalf("component not relayed verbatim: %s", a.Component)
	}
	if a.InvestorURL != "https://acme.test" {
		t.Fatalf("unexpected url: %q", a.InvestorURL)
	}
}

func TestParseAdvice_RepairsSloppyOutput(t *testing.T) {
	raw := "Sure! Here you go:\n```json\n{responseType: 'general', text: 'hello there', chartValues: {labels: [], data: [],},}\n```"
	a, ok := ParseAdvice(raw, "hi")
	if !ok {
		t.Fatalf("expected repaired output to parse")
	}
	if a.ResponseType != ResponseGeneral || a.Text != "hello there" {
		t.Fatalf("unexpected advice: %+v", a)
	}
	if string(a.Component) != "null" {
		t.Fatalf("expected null component, got %s", a.Component)
	}
}

func TestParseAdvice_GarbageFallsBackToHeuristic(t *testing.T) {
	a, ok := ParseAdvice("the model said no", "what about my portfolio?")
	if ok {
		t.Fatalf("expected ok=false")
	}
	if a.ResponseType != ResponseInvestment {
		t.Fatalf("expected heuristic investment, got %q", a.ResponseType)
	}
	if a.Text != fallbackText {
		t.Fatalf("unexpected text: %q", a.Text)
	}
	var chart struct {
		Labels []string  `json:"labels"`
		Data   []float64 `json:"data"`
	}
	if err := json.Unmarshal(a.ChartValues, &chart); err != nil {
		t.Fatalf("default chart values not json: %v", err)
	}
}

func TestParseAdvice_UnknownTypeUsesHeuristic(t *testing.T) {
	a, _ := ParseAdvice(`{"responseType":"banter","text":"x"}`, "tell me a joke")
	if a.ResponseType != ResponseGeneral {
		t.Fatalf("expected general, got %q", a.ResponseType)
	}
}

func TestClassifyPrompt(t *testing.T) {
	cases := map[string]string{
		"Analyze Acme Corp startup":   ResponseInvestment,
		"How is the MARKET today":     ResponseInvestment,
		"Which company should I pick": ResponseInvestment,
		"hello":                       ResponseGeneral,
		"write me a poem":             ResponseGeneral,
	}
	for in, want := range cases {
		if got := ClassifyPrompt(in); got != want {
			t.Fatalf("ClassifyPrompt(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerate_SendsInstructionAndPrompt(t *testing.T) {
	p := &recordingProvider{reply: `{"responseType":"general","text":"hi"}`}
	g := newTestGenerator(p)

	a, err := g.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Text != "hi" {
		t.Fatalf("unexpected text: %q", a.Text)
	}
	if len(p.last) != 2 || p.last[0].Role != RoleSystem || p.last[1].Role != RoleUser || p.last[1].Content != "hello" {
		t.Fatalf("unexpected provider messages: %+v", p.last)
	}
}

func TestGenerate_ProviderErrorDegrades(t *testing.T) {
	p := &recordingProvider{err: errors.New("quota exceeded")}
	g := newTestGenerator(p)

	a, err := g.Generate(context.Background(), "Analyze Acme Corp")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.ResponseType != ResponseInvestment {
		t.Fatalf("expected heuristic type, got %q", a.ResponseType)
	}
	if a.AdditionalInfo != "quota exceeded" {
		t.Fatalf("expected reason in additional info, got %q", a.AdditionalInfo)
	}
}

func TestGenerate_UnknownProviderDegrades(t *testing.T) {
	g := NewAdvisorGenerator(NewRegistry(), "missing", "", zerolog.Nop())
	a, err := g.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.Text != fallbackText {
		t.Fatalf("expected fallback text, got %q", a.Text)
	}
}

func TestOllamaProvider_RequestsJSONFormat(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"text\":\"ok\"}"}}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3:latest")
	reply, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != `{"text":"ok"}` {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if got.Format != "json" || got.Stream {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOpenRouterProvider_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "k", "openrouter/auto", "", "")
	_, err := p.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil || err.Error() != "openrouter: rate limited" {
		t.Fatalf("unexpected error: %v", err)
	}
}
