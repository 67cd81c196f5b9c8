package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/algohaja/internal/middleware"
	"github.com/hitoshi/algohaja/internal/model"
	"github.com/hitoshi/algohaja/internal/user"
)

// --- モック定義 ---

type mockProblemService struct {
	getFn            func(ctx context.Context, problemID int) (*model.Problem, error)
	requestRefreshFn func(problemID int) error
}

func (m *mockProblemService) Get(ctx context.Context, problemID int) (*model.Problem, error) {
	if m.getFn != nil {
		return m.getFn(ctx, problemID)
	}
	return nil, model.NewProblemNotFoundError(problemID)
}

func (m *mockProblemService) RequestRefresh(problemID int) error {
	if m.requestRefreshFn != nil {
		return m.requestRefreshFn(problemID)
	}
	return nil
}

type mockUserService struct {
	meFn            func(ctx context.Context, username string) (*model.User, error)
	changeBojIDFn   func(ctx context.Context, username, password, bojID string) error
	solvedRefreshFn func(ctx context.Context, username string) error
	updateGitFn     func(ctx context.Context, username string, in user.GitLinkInput) error
}

func (m *mockUserService) Me(ctx context.Context, username string) (*model.User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, username)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) ChangeBojID(ctx context.Context, username, password, bojID string) error {
	if m.changeBojIDFn != nil {
		return m.changeBojIDFn(ctx, username, password, bojID)
	}
	return nil
}

func (m *mockUserService) RequestSolvedRefresh(ctx context.Context, username string) error {
	if m.solvedRefreshFn != nil {
		return m.solvedRefreshFn(ctx, username)
	}
	return nil
}

func (m *mockUserService) UpdateGitRepository(ctx context.Context, username string, in user.GitLinkInput) error {
	if m.updateGitFn != nil {
		return m.updateGitFn(ctx, username, in)
	}
	return nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

// --- ヘルパー ---

const testSecret = "handler-test-secret"

func newTestRouter(t *testing.T, problems ProblemServiceInterface, users UserServiceInterface) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(1000))
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Logger:         slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
		HealthChecker:  &mockHealthChecker{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		TokenVerifier:  middleware.NewTokenVerifier(testSecret),
		AllowedOrigins: []string{"http://localhost:3000"},
		RateLimiter:    rl,
		ProblemService: problems,
		UserService:    users,
	})
}

func authCookie(t *testing.T, username string) *http.Cookie {
	t.Helper()
	token, err := middleware.NewTokenVerifier(testSecret).Sign(middleware.AccessClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return &http.Cookie{Name: middleware.AccessTokenCookieName, Value: token}
}

func decodeErrorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Code
}

// --- 問題API ---

func TestProblemHandler_RequestRefresh_Accepted(t *testing.T) {
	var requested int
	router := newTestRouter(t, &mockProblemService{
		requestRefreshFn: func(problemID int) error {
			requested = problemID
			return nil
		},
	}, &mockUserService{})

	req := httptest.NewRequest(http.MethodPost, "/api/problem/1000/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusAccepted)
	}
	if requested != 1000 {
		t.Errorf("requested = %d, want 1000", requested)
	}
}

func TestProblemHandler_RequestRefresh_InvalidID(t *testing.T) {
	for _, raw := range []string{"0", "-5", "abc", "1.5"} {
		t.Run(raw, func(t *testing.T) {
			called := false
			router := newTestRouter(t, &mockProblemService{
				requestRefreshFn: func(problemID int) error {
					called = true
					return nil
				},
			}, &mockUserService{})

			req := httptest.NewRequest(http.MethodPost, "/api/problem/"+raw+"/refresh", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
			if code := decodeErrorCode(t, resp); code != model.ErrCodeInvalidProblemID {
				t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidProblemID)
			}
			if called {
				t.Error("不正な問題番号でキュー投入された")
			}
		})
	}
}

func TestProblemHandler_GetProblem(t *testing.T) {
	router := newTestRouter(t, &mockProblemService{
		getFn: func(ctx context.Context, problemID int) (*model.Problem, error) {
			if problemID == 1000 {
				return &model.Problem{ProblemID: 1000, ProblemName: "A+B", SolvedacTier: 1}, nil
			}
			return nil, model.NewProblemNotFoundError(problemID)
		},
	}, &mockUserService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/problem/1000", nil))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["problemName"] != "A+B" {
		t.Errorf("problemName = %v, want A+B", body["problemName"])
	}
	if tags, ok := body["tags"].([]any); !ok || len(tags) != 0 {
		t.Errorf("tags = %v, want empty array", body["tags"])
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/problem/2000", nil))
	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- ユーザーAPI ---

func TestUserHandler_RequiresAuth(t *testing.T) {
	router := newTestRouter(t, &mockProblemService{}, &mockUserService{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/user/me"},
		{http.MethodPatch, "/api/user/basic"},
		{http.MethodPatch, "/api/user/solved"},
		{http.MethodPatch, "/api/user/git"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Result().StatusCode, http.StatusUnauthorized)
		}
	}
}

func TestUserHandler_Me(t *testing.T) {
	succeeded := true
	router := newTestRouter(t, &mockProblemService{}, &mockUserService{
		meFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{
				ID:       "user-1",
				Username: username,
				UserData: model.UserData{
					BojID:          "alice_boj",
					SolvedacRating: 1500,
					SolvedProblem:  []int{1000},
				},
				LastRequestSucceeded: model.RequestSucceeded{BOJ: &succeeded},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	req.AddCookie(authCookie(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body meResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Username != "alice" || body.UserData.BojID != "alice_boj" {
		t.Errorf("body = %+v", body)
	}
	if body.UserData.TriedProblem == nil {
		t.Error("triedProblem should be an empty array")
	}
	if body.LastRequestSucceeded.BOJ == nil || !*body.LastRequestSucceeded.BOJ {
		t.Error("lastRequestSucceeded.boj should be true")
	}
	if body.LastRequestSucceeded.Solvedac != nil {
		t.Error("lastRequestSucceeded.solvedac should be null")
	}
}

func TestUserHandler_UpdateBasic(t *testing.T) {
	var gotUser, gotPassword, gotBojID string
	router := newTestRouter(t, &mockProblemService{}, &mockUserService{
		changeBojIDFn: func(ctx context.Context, username, password, bojID string) error {
			gotUser, gotPassword, gotBojID = username, password, bojID
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPatch, "/api/user/basic", strings.NewReader(`{"password":"pw","bojId":"new_handle"}`))
	req.AddCookie(authCookie(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusAccepted)
	}
	if gotUser != "alice" || gotPassword != "pw" || gotBojID != "new_handle" {
		t.Errorf("args = (%q, %q, %q)", gotUser, gotPassword, gotBojID)
	}
}

func TestUserHandler_UpdateBasic_InvalidBody(t *testing.T) {
	router := newTestRouter(t, &mockProblemService{}, &mockUserService{})

	for _, body := range []string{"", "{", `{"unknown":1}`} {
		req := httptest.NewRequest(http.MethodPatch, "/api/user/basic", strings.NewReader(body))
		req.AddCookie(authCookie(t, "alice"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want %d", body, resp.StatusCode, http.StatusBadRequest)
			continue
		}
		if code := decodeErrorCode(t, resp); code != model.ErrCodeInvalidRequest {
			t.Errorf("body %q: code = %q, want %q", body, code, model.ErrCodeInvalidRequest)
		}
	}
}

func TestUserHandler_ServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"パスワード不一致", model.NewInvalidPasswordError(), http.StatusUnauthorized},
		{"テストアカウント", model.NewTestAccountError(), http.StatusForbidden},
		{"形式不正", model.NewInvalidBojIDError("x"), http.StatusBadRequest},
		{"内部エラー", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &mockProblemService{}, &mockUserService{
				changeBojIDFn: func(ctx context.Context, username, password, bojID string) error {
					return tt.err
				},
			})

			req := httptest.NewRequest(http.MethodPatch, "/api/user/basic", strings.NewReader(`{"password":"pw","bojId":"handle"}`))
			req.AddCookie(authCookie(t, "alice"))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestUserHandler_RefreshSolved(t *testing.T) {
	router := newTestRouter(t, &mockProblemService{}, &mockUserService{
		solvedRefreshFn: func(ctx context.Context, username string) error {
			if username == "nohandle" {
				return model.NewBojIDNotLinkedError()
			}
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPatch, "/api/user/solved", nil)
	req.AddCookie(authCookie(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusAccepted)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/user/solved", nil)
	req.AddCookie(authCookie(t, "nohandle"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusConflict)
	}
}

func TestUserHandler_UpdateGit(t *testing.T) {
	var got user.GitLinkInput
	router := newTestRouter(t, &mockProblemService{}, &mockUserService{
		updateGitFn: func(ctx context.Context, username string, in user.GitLinkInput) error {
			got = in
			return nil
		},
	})

	body := `{"password":"pw","repoUrl":"https://github.com/alice/boj","bojDir":"boj","linkRule":1}`
	req := httptest.NewRequest(http.MethodPatch, "/api/user/git", strings.NewReader(body))
	req.AddCookie(authCookie(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	want := user.GitLinkInput{
		Password: "pw",
		RepoURL:  "https://github.com/alice/boj",
		BojDir:   "boj",
		LinkRule: model.GitLinkRuleProblemDir,
	}
	if got != want {
		t.Errorf("input = %+v, want %+v", got, want)
	}
}

func TestUserHandler_ForeignOriginRejected(t *testing.T) {
	router := newTestRouter(t, &mockProblemService{}, &mockUserService{
		changeBojIDFn: func(ctx context.Context, username, password, bojID string) error {
			t.Error("別オリジンからの変更が通過した")
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodPatch, "/api/user/basic", strings.NewReader(`{"password":"pw","bojId":"handle"}`))
	req.Header.Set("Origin", "https://evil.example")
	req.AddCookie(authCookie(t, "alice"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

// --- ヘルスチェック・メトリクス ---

func TestHealthAndMetricsRoutes(t *testing.T) {
	router := newTestRouter(t, &mockProblemService{}, &mockUserService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	handler := NewHealthHandler(&mockHealthChecker{err: errors.New("connection refused")})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}
