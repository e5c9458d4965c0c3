package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"campuscms/internal/auth"
	"campuscms/internal/config"
	"campuscms/internal/crypto"
	"campuscms/internal/db"
	"campuscms/internal/model"
	"campuscms/internal/repository"
	"campuscms/internal/upload"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("CAMPUSCMS_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("CAMPUSCMS_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	if err := db.RunMigrations(context.Background(), pool, "../../schema.sql"); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}
	return pool
}

type testEnv struct {
	cfg   config.Config
	store *repository.Store
	app   *httptest.Server
}

func newTestEnv(t *testing.T, pool *pgxpool.Pool) *testEnv {
	t.Helper()
	cfg := config.Config{
		HTTPAddr:        ":0",
		JWTSecret:       "test-secret",
		JWTIssuer:       "test-issuer",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		CookieName:      "campuscms_session",
		PublicBaseURL:   "http://localhost",
		ViewDedupTTL:    time.Minute,
	}
	store := repository.NewStore(pool)
	uploads, err := upload.NewStore(t.TempDir(), cfg.PublicBaseURL)
	if err != nil {
		t.Fatalf("upload store: %v", err)
	}
	server := NewServer(cfg, store, uploads, nil)
	app := httptest.NewServer(server.Router())
	t.Cleanup(app.Close)
	return &testEnv{cfg: cfg, store: store, app: app}
}

func (env *testEnv) createUser(t *testing.T, role model.Role, active bool) model.User {
	t.Helper()
	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        fmt.Sprintf("%s-%s@example.edu", role, uuid.NewString()[:8]),
		PasswordHash: mustHash(t, "dev-password"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := model.Profile{
		UserID:      user.ID,
		DisplayName: "Test " + string(role),
		IsActive:    active,
		IsVerified:  true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := env.store.CreateUserWithRole(context.Background(), user, role, profile); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (env *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.NewAccessToken(env.cfg.JWTSecret, env.cfg.JWTIssuer, 10*time.Minute, userID)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return token
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	return hash
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}

func decodeContent(t *testing.T, resp *http.Response) contentResponse {
	t.Helper()
	defer resp.Body.Close()
	var c contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return c
}

func TestNoticeReviewFlow(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()
	env := newTestEnv(t, pool)

	admin := env.createUser(t, model.RoleAdmin, true)
	adminToken := env.token(t, admin.ID)

	// draft
	resp := doReq(t, http.MethodPost, env.app.URL+"/api/admin/content", adminToken, map[string]interface{}{
		"kind":  "notice",
		"title": "Exam schedule",
		"body":  "Summer exams start in June.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	notice := decodeContent(t, resp)
	if notice.Status != "draft" {
		t.Fatalf("expected draft, got %s", notice.Status)
	}

	// drafts are invisible to the public
	resp = doReq(t, http.MethodGet, env.app.URL+"/api/public/notices/"+notice.ID, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for draft, got %d", resp.StatusCode)
	}

	// submit, then approve with notes
	resp = doReq(t, http.MethodPost, env.app.URL+"/api/admin/content/"+notice.ID+"/submit", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on submit, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// rejecting without a reason fails and leaves the record pending
	resp = doReq(t, http.MethodPost, env.app.URL+"/api/admin/content/"+notice.ID+"/reject", adminToken, map[string]string{"notes": ""})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on empty notes, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, env.app.URL+"/api/admin/content/"+notice.ID+"/approve", adminToken, map[string]string{"notes": "looks good"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on approve, got %d", resp.StatusCode)
	}
	published := decodeContent(t, resp)
	if published.Status != "published" {
		t.Fatalf("expected published, got %s", published.Status)
	}
	if published.PublishedAt == nil {
		t.Fatalf("expected published_at to be set")
	}
	if published.ReviewNotes == nil || *published.ReviewNotes != "looks good" {
		t.Fatalf("expected review notes to be recorded")
	}

	// a second approval is an invalid transition and published_at stands
	resp = doReq(t, http.MethodPost, env.app.URL+"/api/admin/content/"+notice.ID+"/approve", adminToken, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on re-approve, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, env.app.URL+"/api/public/notices/"+notice.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for published notice, got %d", resp.StatusCode)
	}
	got := decodeContent(t, resp)
	if got.PublishedAt == nil || !got.PublishedAt.Equal(*published.PublishedAt) {
		t.Fatalf("published_at must not move")
	}
}

func TestExpiredNoticeHiddenFromPublic(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()
	env := newTestEnv(t, pool)

	admin := env.createUser(t, model.RoleAdmin, true)
	adminToken := env.token(t, admin.ID)

	expired := time.Now().UTC().Add(-time.Hour)
	resp := doReq(t, http.MethodPost, env.app.URL+"/api/admin/content", adminToken, map[string]interface{}{
		"kind":      "notice",
		"title":     "Old notice",
		"body":      "Already over.",
		"expiresAt": expired,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	notice := decodeContent(t, resp)

	for _, step := range []string{"submit", "approve"} {
		resp = doReq(t, http.MethodPost, env.app.URL+"/api/admin/content/"+notice.ID+"/"+step, adminToken, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 on %s, got %d", step, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// published but expired: the public sees not found, the admin still sees it
	resp = doReq(t, http.MethodGet, env.app.URL+"/api/public/notices/"+notice.ID, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for expired notice, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, env.app.URL+"/api/admin/content/"+notice.ID, adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin preview, got %d", resp.StatusCode)
	}
	preview := decodeContent(t, resp)
	if preview.Views != 0 {
		t.Fatalf("admin preview must not count views")
	}
}

func TestResearchPaperLifecycle(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()
	env := newTestEnv(t, pool)

	admin := env.createUser(t, model.RoleAdmin, true)
	author := env.createUser(t, model.RoleTeacher, true)
	rival := env.createUser(t, model.RoleTeacher, true)
	adminToken := env.token(t, admin.ID)
	authorToken := env.token(t, author.ID)
	rivalToken := env.token(t, rival.ID)

	resp := doReq(t, http.MethodPost, env.app.URL+"/api/teacher/papers", authorToken, map[string]interface{}{
		"kind":     "research_paper",
		"title":    "On the Coloring of Campus Maps",
		"body":     "Full text.",
		"abstract": "Four colors suffice.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	paper := decodeContent(t, resp)
	if paper.SubmittedBy == nil || *paper.SubmittedBy != author.ID {
		t.Fatalf("expected submitted_by = author")
	}

	// another teacher can neither see nor submit it
	resp = doReq(t, http.MethodGet, env.app.URL+"/api/teacher/papers/"+paper.ID, rivalToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign paper, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = doReq(t, http.MethodPost, env.app.URL+"/api/teacher/papers/"+paper.ID+"/submit", rivalToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign submit, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// the author submits; the author cannot approve
	resp = doReq(t, http.MethodPost, env.app.URL+"/api/teacher/papers/"+paper.ID+"/submit", authorToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on submit, got %d", resp.StatusCode)
	}
	submitted := decodeContent(t, resp)
	if submitted.Status != "pending" {
		t.Fatalf("expected pending, got %s", submitted.Status)
	}
	resp = doReq(t, http.MethodPost, env.app.URL+"/api/admin/content/"+paper.ID+"/approve", authorToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for teacher approve, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, env.app.URL+"/api/admin/content/"+paper.ID+"/approve", adminToken, map[string]string{"notes": "accepted"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on approve, got %d", resp.StatusCode)
	}
	approved := decodeContent(t, resp)
	if approved.ApprovedAt == nil || approved.PublishedAt == nil {
		t.Fatalf("expected approval timestamps")
	}
	if approved.ReviewedBy == nil || *approved.ReviewedBy != admin.ID {
		t.Fatalf("expected reviewer on record")
	}
}

func TestDeactivatedTeacherCannotSubmit(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()
	env := newTestEnv(t, pool)

	author := env.createUser(t, model.RoleTeacher, true)
	authorToken := env.token(t, author.ID)

	resp := doReq(t, http.MethodPost, env.app.URL+"/api/teacher/papers", authorToken, map[string]interface{}{
		"kind":  "research_paper",
		"title": "Draft",
		"body":  "Text.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	paper := decodeContent(t, resp)

	inactive := false
	if _, err := env.store.UpdateProfile(context.Background(), author.ID, repository.ProfileUpdate{IsActive: &inactive}, time.Now().UTC()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	resp = doReq(t, http.MethodPost, env.app.URL+"/api/teacher/papers/"+paper.ID+"/submit", authorToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated account, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	c, err := env.store.GetContent(context.Background(), paper.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if c.Status != model.StatusDraft {
		t.Fatalf("status must be unchanged, got %s", c.Status)
	}
}

func TestPortalGuardRedirects(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()
	env := newTestEnv(t, pool)

	student := env.createUser(t, model.RoleStudent, true)
	studentToken := env.token(t, student.ID)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	// anonymous visitor lands on the admin login page
	req, _ := http.NewRequest(http.MethodGet, env.app.URL+"/admin/dashboard", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/admin/login" {
		t.Fatalf("expected 303 to /admin/login, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp.Body.Close()

	// a student session is sent to the student dashboard, never the admin view
	req, _ = http.NewRequest(http.MethodGet, env.app.URL+"/admin/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/student/dashboard" {
		t.Fatalf("expected 303 to /student/dashboard, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp.Body.Close()

	// their own dashboard renders
	req, _ = http.NewRequest(http.MethodGet, env.app.URL+"/student/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+studentToken)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleStoreOutageSurfaces(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()
	env := newTestEnv(t, pool)

	admin := env.createUser(t, model.RoleAdmin, true)
	adminToken := env.token(t, admin.ID)

	resp := doReq(t, http.MethodGet, env.app.URL+"/auth/me", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 while the store is up, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	pool.Close()

	// an outage is a retryable fault, never reported as a dead session
	resp = doReq(t, http.MethodGet, env.app.URL+"/auth/me", adminToken, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 during outage, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	resp.Body.Close()
	if body["error"] != "upstream_unavailable" {
		t.Fatalf("expected upstream_unavailable, got %q", body["error"])
	}

	// the portal guard must not bounce the visitor to login either
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	req, _ := http.NewRequest(http.MethodGet, env.app.URL+"/admin/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 during outage, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPublicViewsCount(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()
	env := newTestEnv(t, pool)

	admin := env.createUser(t, model.RoleAdmin, true)
	adminToken := env.token(t, admin.ID)

	resp := doReq(t, http.MethodPost, env.app.URL+"/api/admin/content", adminToken, map[string]interface{}{
		"kind":  "news",
		"title": "New library wing",
		"body":  "Opening next term.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	news := decodeContent(t, resp)
	for _, step := range []string{"submit", "approve"} {
		resp = doReq(t, http.MethodPost, env.app.URL+"/api/admin/content/"+news.ID+"/"+step, adminToken, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 on %s, got %d", step, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// two public reads count without redis dedup configured, and each
	// response already includes the reader's own hit
	for i := 0; i < 2; i++ {
		resp = doReq(t, http.MethodGet, env.app.URL+"/api/public/news/"+news.ID, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		got := decodeContent(t, resp)
		if got.Views != int64(i+1) {
			t.Fatalf("expected %d views in response, got %d", i+1, got.Views)
		}
	}

	c, err := env.store.GetContent(context.Background(), news.ID)
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if c.Views != 2 {
		t.Fatalf("expected 2 views, got %d", c.Views)
	}
}
