package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, problem, user, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidProblemID  = "INVALID_PROBLEM_ID"
	ErrCodeProblemNotFound   = "PROBLEM_NOT_FOUND"
	ErrCodeInvalidBojID      = "INVALID_BOJ_ID"
	ErrCodeBojIDNotLinked    = "BOJ_ID_NOT_LINKED"
	ErrCodeInvalidRepoURL    = "INVALID_REPO_URL"
	ErrCodeInvalidBojDir     = "INVALID_BOJ_DIR"
	ErrCodeCloneFailed       = "CLONE_FAILED"
	ErrCodeInvalidPassword   = "INVALID_PASSWORD"
	ErrCodeTestAccount       = "TEST_ACCOUNT_READ_ONLY"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeForbiddenOrigin   = "FORBIDDEN_ORIGIN"
)

// NewInvalidProblemIDError は問題番号が不正な場合のエラーを生成する。
func NewInvalidProblemIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProblemID,
		Message:  fmt.Sprintf("無効な問題番号です: %s", raw),
		Category: "validation",
		Action:   "1以上の整数で問題番号を指定してください。",
	}
}

// NewProblemNotFoundError は問題が見つからない場合のエラーを生成する。
func NewProblemNotFoundError(problemID int) *APIError {
	return &APIError{
		Code:     ErrCodeProblemNotFound,
		Message:  fmt.Sprintf("指定された問題が見つかりません: %d", problemID),
		Category: "problem",
		Action:   "問題情報の更新をリクエストし、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidBojIDError はBOJハンドルの形式が不正な場合のエラーを生成する。
func NewInvalidBojIDError(bojID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBojID,
		Message:  fmt.Sprintf("無効なBOJ IDです: %s", bojID),
		Category: "validation",
		Action:   "英小文字・数字・アンダースコアからなる3〜20文字のIDを入力してください。",
	}
}

// NewBojIDNotLinkedError はBOJハンドル未連携のユーザーが更新を要求した場合のエラーを生成する。
func NewBojIDNotLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeBojIDNotLinked,
		Message:  "BOJ IDが連携されていません。",
		Category: "user",
		Action:   "先にBOJ IDを登録してください。",
	}
}

// NewInvalidRepoURLError はリポジトリURLが不正な場合のエラーを生成する。
func NewInvalidRepoURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRepoURL,
		Message:  fmt.Sprintf("無効なリポジトリURLです: %s", reason),
		Category: "validation",
		Action:   "公開されているGitリポジトリのhttps URLを入力してください。",
	}
}

// NewInvalidBojDirError はリポジトリ内ディレクトリ指定が不正な場合のエラーを生成する。
func NewInvalidBojDirError(dir string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBojDir,
		Message:  fmt.Sprintf("無効なディレクトリ指定です: %s", dir),
		Category: "validation",
		Action:   "リポジトリルートからの相対パスを指定してください（..は使用できません）。",
	}
}

// NewCloneFailedError はリポジトリの複製に失敗した場合のエラーを生成する。
func NewCloneFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCloneFailed,
		Message:  "リポジトリを取得できませんでした。",
		Category: "user",
		Action:   "リポジトリが公開されているか確認してください。",
	}
}

// NewInvalidPasswordError はパスワード確認に失敗した場合のエラーを生成する。
func NewInvalidPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  "パスワードが正しくありません。",
		Category: "auth",
		Action:   "現在のパスワードを入力してください。",
	}
}

// NewTestAccountError はテストアカウントで変更操作を行った場合のエラーを生成する。
func NewTestAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeTestAccount,
		Message:  "テストアカウントの情報は変更できません。",
		Category: "user",
		Action:   "通常のアカウントでログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewForbiddenOriginError は許可されていないオリジンからの変更リクエストのエラーを生成する。
func NewForbiddenOriginError() *APIError {
	return &APIError{
		Code:     ErrCodeForbiddenOrigin,
		Message:  "許可されていないオリジンからのリクエストです。",
		Category: "auth",
		Action:   "公式のフロントエンドから操作してください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログにのみ残し、利用者には一般的な文言を返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
