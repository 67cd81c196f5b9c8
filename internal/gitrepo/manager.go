// Package gitrepo はユーザーが連携したGitリポジトリの作業コピーを管理する。
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotCloned は作業コピーが存在しない状態で更新を要求した場合のエラー。
var ErrNotCloned = errors.New("gitrepo: repository not cloned")

const cloneTempMarker = ".clone-"

// validUsername は作業コピーのディレクトリ名として使用できるユーザー名。
var validUsername = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// CommandRunner は外部コマンドの実行を抽象化する。テストで差し替える。
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner はos/execによるCommandRunnerの実装。
type execRunner struct{}

// Run はコマンドを実行し、標準出力と標準エラー出力をまとめて返す。
// 認証プロンプトで停止しないよう GIT_TERMINAL_PROMPT=0 を設定する。
func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	return cmd.CombinedOutput()
}

// Manager は {rootDir}/personal/{username} 配下の作業コピーを扱う。
// 同じユーザーの複製、更新、削除は直列に実行する。
type Manager struct {
	rootDir string
	runner  CommandRunner
	logger  *slog.Logger

	locks sync.Map // username -> *sync.Mutex
}

// NewManager はManagerの新しいインスタンスを生成する。runnerがnilの場合はgitコマンドを直接実行する。
func NewManager(rootDir string, runner CommandRunner, logger *slog.Logger) *Manager {
	if runner == nil {
		runner = execRunner{}
	}
	return &Manager{
		rootDir: rootDir,
		runner:  runner,
		logger:  logger,
	}
}

// PersonalDir はユーザーの作業コピーのパスを返す。
func (m *Manager) PersonalDir(username string) (string, error) {
	if !validUsername.MatchString(username) || username == "." || username == ".." {
		return "", fmt.Errorf("作業コピーに使用できないユーザー名です: %q", username)
	}
	return filepath.Join(m.rootDir, "personal", username), nil
}

// Clone はrepoURLを浅く複製し、既存の作業コピーを置き換える。
// 一時ディレクトリへ複製してから入れ替えるため、失敗時も既存の作業コピーは残る。
func (m *Manager) Clone(ctx context.Context, repoURL, username string) error {
	dest, err := m.PersonalDir(username)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("リポジトリ保存先の作成に失敗しました: %w", err)
	}

	defer m.lock(username)()

	tmp := dest + cloneTempMarker + uuid.NewString()
	out, err := m.runner.Run(ctx, "git", "clone", "--depth", "1", "--", repoURL, tmp)
	if err != nil {
		_ = os.RemoveAll(tmp)
		m.logger.Warn("リポジトリの複製に失敗しました",
			slog.String("username", username),
			slog.String("output", trimOutput(out)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("git clone に失敗しました: %w", err)
	}

	if err := os.RemoveAll(dest); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("既存の作業コピーの削除に失敗しました: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("作業コピーの配置に失敗しました: %w", err)
	}

	m.logger.Info("リポジトリを複製しました", slog.String("username", username))
	return nil
}

// RefreshRepository は作業コピーを fast-forward で最新化する。
// 作業コピーが存在しない場合はErrNotClonedを返す。
func (m *Manager) RefreshRepository(ctx context.Context, username string) error {
	dir, err := m.PersonalDir(username)
	if err != nil {
		return err
	}
	defer m.lock(username)()

	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotCloned, username)
		}
		return fmt.Errorf("作業コピーの確認に失敗しました: %w", err)
	}

	out, err := m.runner.Run(ctx, "git", "-C", dir, "pull", "--ff-only")
	if err != nil {
		return fmt.Errorf("git pull に失敗しました: %s: %w", trimOutput(out), err)
	}
	return nil
}

// Entry は personal 配下のディレクトリ1件を表す。
type Entry struct {
	Name    string
	ModTime time.Time
}

// IsCloneTemp は複製途中の一時ディレクトリかどうかを返す。
func (e Entry) IsCloneTemp() bool {
	return strings.Contains(e.Name, cloneTempMarker)
}

// ListPersonalEntries は personal 配下のディレクトリを返す。
// 中断した複製の一時ディレクトリも含む。personal が存在しない場合は空を返す。
func (m *Manager) ListPersonalEntries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(filepath.Join(m.rootDir, "personal"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("作業コピー一覧の取得に失敗しました: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		if !d.IsDir() {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// 列挙中に消えたものは無視する
			continue
		}
		entries = append(entries, Entry{Name: d.Name(), ModTime: info.ModTime()})
	}
	return entries, nil
}

// RemovePersonalEntry は personal 配下の1エントリを、modifiedBefore より前から
// 更新されていない場合に限り削除する。削除した場合はtrueを返す。
// 判定は所有ユーザーのロック内で行うため、複製直後の作業コピーは削除されない。
func (m *Manager) RemovePersonalEntry(name string, modifiedBefore time.Time) (bool, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return false, fmt.Errorf("削除できないエントリ名です: %q", name)
	}
	owner, _, _ := strings.Cut(name, cloneTempMarker)
	defer m.lock(owner)()

	path := filepath.Join(m.rootDir, "personal", name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("作業コピーの確認に失敗しました: %w", err)
	}
	if !info.ModTime().Before(modifiedBefore) {
		return false, nil
	}
	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("作業コピーの削除に失敗しました: %w", err)
	}
	return true, nil
}

// lock はユーザー単位のロックを取得し、解放関数を返す。
func (m *Manager) lock(username string) func() {
	v, _ := m.locks.LoadOrStore(username, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// trimOutput はログ出力用にgitの出力を切り詰める。
func trimOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
