// Package logger はJSON構造化ログの初期化を行う。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// level はグローバルロガーのレベル。設定読み込み後にSetLevelで変更する。
var level = new(slog.LevelVar)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer, lvl slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定し、そのロガーを返す。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, level)
	slog.SetDefault(logger)
	return logger
}

// SetLevel はSetupDefaultで設定したロガーの出力レベルを変更する。
func SetLevel(lvl slog.Level) {
	level.Set(lvl)
}
