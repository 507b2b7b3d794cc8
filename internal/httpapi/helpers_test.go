package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/investocrafy/internal/ai"
	"github.com/suPer8Hu/investocrafy/internal/auth"
	"github.com/suPer8Hu/investocrafy/internal/chat"
	"github.com/suPer8Hu/investocrafy/internal/common"
	"github.com/suPer8Hu/investocrafy/internal/config"
	"github.com/suPer8Hu/investocrafy/internal/db"
	"github.com/suPer8Hu/investocrafy/internal/email"
	"github.com/suPer8Hu/investocrafy/internal/httpapi/handlers"
	"github.com/suPer8Hu/investocrafy/internal/models"
	"github.com/suPer8Hu/investocrafy/internal/ratelimit"
	"github.com/suPer8Hu/investocrafy/internal/store/objectstore"
	"github.com/suPer8Hu/investocrafy/internal/store/redisstore"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type cannedGenerator struct{}

func (cannedGenerator) Generate(ctx context.Context, prompt string) (ai.Advice, error) {
	_ = ctx
	return ai.Advice{ResponseType: ai.ClassifyPrompt(prompt), Text: "advice for: " + prompt}, nil
}

type captureMailer struct {
	mu   sync.Mutex
	jobs []email.Job
}

func (m *captureMailer) Enqueue(ctx context.Context, job email.Job) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *captureMailer) count(kind email.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.Kind == kind {
			n++
		}
	}
	return n
}

func (m *captureMailer) last(kind email.Kind) (email.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.jobs) - 1; i >= 0; i-- {
		if m.jobs[i].Kind == kind {
			return m.jobs[i], true
		}
	}
	return email.Job{}, false
}

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *captureMailer) code(t *testing.T, kind email.Kind) string {
	t.Helper()
	j, ok := m.last(kind)
	require.True(t, ok, "no %s mail queued", kind)
	code := otpPattern.FindString(j.Body)
	require.NotEmpty(t, code, "no code in mail body")
	return code
}

type memAvatars struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (s *memAvatars) Put(ctx context.Context, investorID string, r io.Reader, size int64, contentType string) (string, error) {
	_ = ctx
	key, err := objectstore.AvatarKey(investorID, contentType)
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = b
	return key, nil
}

func (s *memAvatars) URL(ctx context.Context, key string) (string, error) {
	_ = ctx
	return "https://cdn.test/" + key, nil
}

func (s *memAvatars) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type apiEnv struct {
	db      *gorm.DB
	mr      *miniredis.Miniredis
	rds     *redisstore.Store
	cfg     config.Config
	mailer  *captureMailer
	avatars *memAvatars
	router  *gin.Engine
}

type envOpts struct {
	promptLimit int
	noAvatars   bool
}

func newAPIEnv(t *testing.T, opts envOpts) *apiEnv {
	t.Helper()

	gdb, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	mr := miniredis.RunT(t)
	rds := redisstore.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = rds.Close() })

	e := &apiEnv{
		db:     gdb,
		mr:     mr,
		rds:    rds,
		mailer: &captureMailer{},
		cfg: config.Config{
			AccessTokenSecret:  "test-access",
			RefreshTokenSecret: "test-refresh",
			FrontendURL:        "http://app.test",
		},
	}

	deps := handlers.Deps{
		DB:      gdb,
		Cfg:     e.cfg,
		Redis:   rds,
		ChatSvc: chat.NewService(chat.NewRepo(gdb), rds, cannedGenerator{}),
		Mailer:  e.mailer,
	}
	if !opts.noAvatars {
		e.avatars = &memAvatars{}
		deps.Avatars = e.avatars
	}

	var limiter *ratelimit.FixedWindowLimiter
	if opts.promptLimit > 0 {
		limiter, err = ratelimit.NewFixedWindowLimiter(rds.Client(), "user-prompt", opts.promptLimit, time.Minute)
		require.NoError(t, err)
		e.router = NewRouter(deps, limiter, zerolog.Nop())
	} else {
		e.router = NewRouter(deps, nil, zerolog.Nop())
	}
	return e
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type reqOpt func(*http.Request)

func withToken(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, opts ...reqOpt) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	return e.serve(t, req)
}

func (e *apiEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "data: %s", string(raw))
	return v
}

// seedInvestor stores a verified investor and returns it with an access token.
func (e *apiEnv) seedInvestor(t *testing.T, addr, password string) (models.Investor, string) {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	inv := models.Investor{
		ID:           common.MustULID(),
		Name:         "Ada",
		Email:        addr,
		PasswordHash: hash,
		Verified:     true,
	}
	require.NoError(t, e.db.Create(&inv).Error)
	tok, err := auth.SignJWT(inv.ID, e.cfg.AccessTokenSecret, time.Minute)
	require.NoError(t, err)
	return inv, tok
}
