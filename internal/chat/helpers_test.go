package chat

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/investocrafy/internal/ai"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/store/redisstore"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	advice  ai.Advice
	err     error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (ai.Advice, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return ai.Advice{}, g.err
	}
	a := g.advice
	if a.ResponseType == "" {
		a.ResponseType = ai.ClassifyPrompt(prompt)
	}
	if a.Text == "" {
		a.Text = "answer: " + prompt
	}
	return a, nil
}

type testEnv struct {
	db    *gorm.DB
	repo  *Repo
	cache *redisstore.Store
	mr    *miniredis.Miniredis
	gen   *stubGenerator
	svc   *Service
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "chat.db")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	mr := miniredis.RunT(t)
	cache := redisstore.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	repo := NewRepo(db)
	gen := &stubGenerator{}
	return &testEnv{
		db:    db,
		repo:  repo,
		cache: cache,
		mr:    mr,
		gen:   gen,
		svc:   NewService(repo, cache, gen),
	}
}

func newInvestorID() string { return common.MustULID() }

func (e *testEnv) createChat(t *testing.T, investorID string) *Chat {
	t.Helper()
	c := &Chat{InvestorID: investorID}
	if err := e.repo.CreateChat(context.Background(), c); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return c
}

// createMessage stores a prompt, an AI response and the message binding
// them. A zero at lets the store pick the timestamps.
func (e *testEnv) createMessage(t *testing.T, investorID, chatID, text string, at time.Time) *Message {
	t.Helper()
	ctx := context.Background()
	p := &Prompt{InvestorID: investorID, Text: text, CreatedAt: at}
	if err := e.repo.CreatePrompt(ctx, p); err != nil {
		t.Fatalf("create prompt: %v", err)
	}
	r := &AIResponse{
		InvestorID:   investorID,
		ResponseType: ResponseGeneral,
		Text:         "answer: " + text,
		Component:    datatypes.JSON("null"),
		ChartValues:  datatypes.JSON(`{"labels":[],"data":[]}`),
		CreatedAt:    at,
	}
	if err := e.repo.CreateAIResponse(ctx, r); err != nil {
		t.Fatalf("create ai response: %v", err)
	}
	m := &Message{InvestorID: investorID, ChatID: chatID, PromptID: p.ID, AIResponseID: r.ID, CreatedAt: at}
	if err := e.repo.CreateMessage(ctx, m); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}

func (e *testEnv) putMirror(t *testing.T, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal mirror: %v", err)
	}
	if err := e.mr.Set(key, string(raw)); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	e.mr.SetTTL(key, MirrorTTL)
}

func (e *testEnv) activeMirror(t *testing.T, investorID string) *ActiveChat {
	t.Helper()
	raw, err := e.mr.Get(ActiveChatKey(investorID))
	if err != nil {
		return nil
	}
	var m ActiveChat
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode active mirror: %v", err)
	}
	return &m
}

func (e *testEnv) historyMirror(t *testing.T, investorID string) *HistoryMirror {
	t.Helper()
	raw, err := e.mr.Get(HistoryKey(investorID))
	if err != nil {
		return nil
	}
	var h HistoryMirror
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		t.Fatalf("decode history mirror: %v", err)
	}
	return &h
}

func (e *testEnv) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
