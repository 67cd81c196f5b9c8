package refresh

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hitoshi/algohaja/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// syncBuffer はゴルーチンから安全に書き込めるログ出力先。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(buf *syncBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// --- メトリクス ---

// recordingMetrics は記録内容を保持するSyncMetricsの実装。
type recordingMetrics struct {
	mu       sync.Mutex
	fetch    map[string]int // "source/result"
	merge    map[string]int
	skipped  map[string]int
	drained  map[string]int
	depth    map[string]int
	enqueued map[string]int // "queue/origin"
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		fetch:    map[string]int{},
		merge:    map[string]int{},
		skipped:  map[string]int{},
		drained:  map[string]int{},
		depth:    map[string]int{},
		enqueued: map[string]int{},
	}
}

func (r *recordingMetrics) RecordFetch(source, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetch[source+"/"+result]++
}

func (r *recordingMetrics) RecordFetchLatency(string, time.Duration) {}

func (r *recordingMetrics) RecordMergeFailure(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merge[kind]++
}

func (r *recordingMetrics) RecordCycleSkipped(q string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped[q]++
}

func (r *recordingMetrics) RecordDrained(q string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drained[q] += n
}

func (r *recordingMetrics) SetQueueDepth(q string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth[q] = n
}

func (r *recordingMetrics) RecordEnqueued(q, origin string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued[q+"/"+origin] += n
}

func (r *recordingMetrics) get(m map[string]int, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return m[key]
}

// --- 待機 ---

// recordingSleeper は待機時間を記録し、実際には待たない。
type recordingSleeper struct {
	mu     sync.Mutex
	calls  []time.Duration
	events *eventLog
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	if s.events != nil {
		s.events.add(fmt.Sprintf("sleep:%s", d))
	}
	return ctx.Err()
}

func (s *recordingSleeper) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

// eventLog は処理順序を記録する。
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// --- リポジトリ ---

// memUserRepo はフィールド単位の更新を行うインメモリのUserRepository。
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	listReferencedErr error
	listBojIDsErr     error
	listGitErr        error
	replaceErr        error
}

func newMemUserRepo(users ...*model.User) *memUserRepo {
	r := &memUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) get(id string) model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[id]
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *memUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) ListReferencedProblemIDs(context.Context) ([]int, error) {
	if r.listReferencedErr != nil {
		return nil, r.listReferencedErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int]bool{}
	var ids []int
	for _, u := range r.users {
		for _, id := range append(append([]int{}, u.UserData.SolvedProblem...), u.UserData.TriedProblem...) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *memUserRepo) ListBojIDs(context.Context) ([]string, error) {
	if r.listBojIDsErr != nil {
		return nil, r.listBojIDsErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, u := range r.users {
		if h := u.UserData.BojID; h != "" && !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memUserRepo) ListGitLinkedUsernames(context.Context) ([]string, error) {
	if r.listGitErr != nil {
		return nil, r.listGitErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.users {
		if u.GitRepo.Linked {
			out = append(out, u.Username)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memUserRepo) eachByHandle(handle string, fn func(u *model.User)) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		if u.UserData.BojID == handle {
			fn(u)
			n++
		}
	}
	return n
}

func boolPtr(b bool) *bool { return &b }

func (r *memUserRepo) ReplaceJudgeLists(_ context.Context, handle string, solved, tried []int) (int64, error) {
	if r.replaceErr != nil {
		return 0, r.replaceErr
	}
	return r.eachByHandle(handle, func(u *model.User) {
		u.UserData.SolvedProblem = append([]int{}, solved...)
		u.UserData.TriedProblem = append([]int{}, tried...)
		u.LastRequestSucceeded.BOJ = boolPtr(true)
	}), nil
}

func (r *memUserRepo) UpdateSolvedacRating(_ context.Context, handle string, rating int) (int64, error) {
	return r.eachByHandle(handle, func(u *model.User) {
		u.UserData.SolvedacRating = rating
		u.LastRequestSucceeded.Solvedac = boolPtr(true)
	}), nil
}

func (r *memUserRepo) MarkRequestFailed(_ context.Context, handle string, source model.JudgeSource) (int64, error) {
	return r.eachByHandle(handle, func(u *model.User) {
		switch source {
		case model.JudgeSourceBOJ:
			u.LastRequestSucceeded.BOJ = boolPtr(false)
		case model.JudgeSourceSolvedac:
			u.LastRequestSucceeded.Solvedac = boolPtr(false)
		}
	}), nil
}

func (r *memUserRepo) ChangeBojID(_ context.Context, userID, bojID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %s", userID)
	}
	u.UserData = model.UserData{BojID: bojID, SolvedProblem: []int{}, TriedProblem: []int{}}
	u.LastRequestSucceeded = model.RequestSucceeded{}
	return nil
}

func (r *memUserRepo) UpdateGitLink(_ context.Context, userID string, link model.GitLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %s", userID)
	}
	u.GitRepo = link
	return nil
}

// mockProblemRepo はProblemRepositoryのモック。
type mockProblemRepo struct {
	findByIDFunc      func(ctx context.Context, id int) (*model.Problem, error)
	upsertScrapedFunc func(ctx context.Context, p *model.Problem) error
	listIDsFunc       func(ctx context.Context) ([]int, error)
}

func (m *mockProblemRepo) FindByID(ctx context.Context, id int) (*model.Problem, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockProblemRepo) UpsertScraped(ctx context.Context, p *model.Problem) error {
	if m.upsertScrapedFunc != nil {
		return m.upsertScrapedFunc(ctx, p)
	}
	return nil
}

func (m *mockProblemRepo) ListIDs(ctx context.Context) ([]int, error) {
	if m.listIDsFunc != nil {
		return m.listIDsFunc(ctx)
	}
	return nil, nil
}

// --- アダプター ---

type mockSolvedFetcher struct {
	fetchFunc func(ctx context.Context, handle string) (*model.SolvedStatus, error)
}

func (m *mockSolvedFetcher) FetchUserSolved(ctx context.Context, handle string) (*model.SolvedStatus, error) {
	return m.fetchFunc(ctx, handle)
}

type mockTierFetcher struct {
	fetchFunc func(ctx context.Context, handle string) (int, error)
}

func (m *mockTierFetcher) FetchUserTier(ctx context.Context, handle string) (int, error) {
	return m.fetchFunc(ctx, handle)
}

type mockProblemFetcher struct {
	fetchFunc func(ctx context.Context, id int) (*model.ProblemInfo, error)
}

func (m *mockProblemFetcher) FetchProblemInfo(ctx context.Context, id int) (*model.ProblemInfo, error) {
	return m.fetchFunc(ctx, id)
}

type mockRefresher struct {
	refreshFunc func(ctx context.Context, username string) error
}

func (m *mockRefresher) RefreshRepository(ctx context.Context, username string) error {
	return m.refreshFunc(ctx, username)
}
