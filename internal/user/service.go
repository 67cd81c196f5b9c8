// Package user はユーザー自身による連携情報の変更を扱う。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/algohaja/internal/model"
	"github.com/hitoshi/algohaja/internal/repository"
)

// bojIDPattern はBOJのハンドル規則（英小文字・数字・アンダースコア、3〜20文字）。
var bojIDPattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// RefreshRequester は同期キューへの優先投入インターフェース。
// refresh.Triggers が実装する。
type RefreshRequester interface {
	RequestJudgeRefresh(handle string)
	RequestRepositoryRefresh(username string)
}

// RepoURLValidator はユーザー入力のリポジトリURLを検証する。
type RepoURLValidator interface {
	ValidateRepoURL(rawURL string) error
}

// RepositoryCloner はユーザーの作業コピーを作成する。
type RepositoryCloner interface {
	Clone(ctx context.Context, repoURL, username string) error
}

// Service はユーザー情報のサービス層。
type Service struct {
	users     repository.UserRepository
	refresher RefreshRequester
	validator RepoURLValidator
	cloner    RepositoryCloner
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	refresher RefreshRequester,
	validator RepoURLValidator,
	cloner RepositoryCloner,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:     users,
		refresher: refresher,
		validator: validator,
		cloner:    cloner,
		logger:    logger,
	}
}

// Me はログイン中のユーザー情報を返す。
func (s *Service) Me(ctx context.Context, username string) (*model.User, error) {
	return s.findUser(ctx, username)
}

// ChangeBojID はパスワードを確認したうえでBOJハンドルを変更する。
// ハンドルが変わった場合は判定サイト由来のフィールドを初期化し、新しいハンドルの同期を要求する。
func (s *Service) ChangeBojID(ctx context.Context, username, password, bojID string) error {
	u, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	if u.IsTestAccount {
		return model.NewTestAccountError()
	}
	if err := checkPassword(u.HashedPassword, password); err != nil {
		return err
	}

	normalized := strings.ToLower(strings.TrimSpace(bojID))
	if !bojIDPattern.MatchString(normalized) {
		return model.NewInvalidBojIDError(bojID)
	}
	if normalized == u.UserData.BojID {
		return nil
	}

	if err := s.users.ChangeBojID(ctx, u.ID, normalized); err != nil {
		return fmt.Errorf("BOJ IDの変更に失敗しました: %w", err)
	}

	s.logger.Info("BOJ IDを変更しました",
		slog.String("username", u.Username),
		slog.String("old_boj_id", u.UserData.BojID),
		slog.String("boj_id", normalized),
	)
	s.refresher.RequestJudgeRefresh(normalized)
	return nil
}

// RequestSolvedRefresh は連携中のBOJハンドルの同期を要求する。
// 保存済みのリストはそのまま残す。
func (s *Service) RequestSolvedRefresh(ctx context.Context, username string) error {
	u, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	if !u.UserData.HasBojID() {
		return model.NewBojIDNotLinkedError()
	}
	s.refresher.RequestJudgeRefresh(u.UserData.BojID)
	return nil
}

// GitLinkInput はGitリポジトリ連携の変更内容。
type GitLinkInput struct {
	Password string
	RepoURL  string
	BojDir   string
	LinkRule model.GitLinkRule
}

// UpdateGitRepository はリポジトリURLを検証して作業コピーを作成し、連携情報を保存する。
func (s *Service) UpdateGitRepository(ctx context.Context, username string, in GitLinkInput) error {
	u, err := s.findUser(ctx, username)
	if err != nil {
		return err
	}
	if u.IsTestAccount {
		return model.NewTestAccountError()
	}
	if err := checkPassword(u.HashedPassword, in.Password); err != nil {
		return err
	}

	repoURL := strings.TrimSpace(in.RepoURL)
	if err := s.validator.ValidateRepoURL(repoURL); err != nil {
		return model.NewInvalidRepoURLError(err.Error())
	}
	bojDir, err := normalizeBojDir(in.BojDir)
	if err != nil {
		return err
	}
	if !in.LinkRule.Valid() {
		return &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  fmt.Sprintf("無効な配置規則です: %d", in.LinkRule),
			Category: "validation",
			Action:   "配置規則には1または2を指定してください。",
		}
	}

	if err := s.cloner.Clone(ctx, repoURL, u.Username); err != nil {
		s.logger.Warn("リポジトリの複製に失敗しました",
			slog.String("username", u.Username),
			slog.String("error", err.Error()),
		)
		return model.NewCloneFailedError()
	}

	link := model.GitLink{
		Linked:   true,
		RepoURL:  repoURL,
		BojDir:   bojDir,
		LinkRule: in.LinkRule,
	}
	if err := s.users.UpdateGitLink(ctx, u.ID, link); err != nil {
		return fmt.Errorf("Git連携情報の更新に失敗しました: %w", err)
	}

	s.refresher.RequestRepositoryRefresh(u.Username)
	return nil
}

func (s *Service) findUser(ctx context.Context, username string) (*model.User, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

func checkPassword(hashed, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrHashTooShort) {
		return model.NewInvalidPasswordError()
	}
	return fmt.Errorf("パスワードの検証に失敗しました: %w", err)
}

// normalizeBojDir はリポジトリ内のディレクトリ指定を正規化する。
// 空文字とリポジトリルート（"."）は空文字として扱う。
func normalizeBojDir(dir string) (string, error) {
	raw := strings.TrimSpace(dir)
	if strings.ContainsAny(raw, "\\\x00") || strings.HasPrefix(raw, "/") {
		return "", model.NewInvalidBojDirError(dir)
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", model.NewInvalidBojDirError(dir)
		}
	}
	cleaned := path.Clean("/" + raw)[1:]
	return cleaned, nil
}
