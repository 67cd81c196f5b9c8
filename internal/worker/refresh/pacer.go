// Package refresh は外部サービスとの同期処理を提供する。
// キューのドレインサイクル、取得結果の反映、キューのシード、エンキュートリガーを含む。
package refresh

import (
	"context"
	"time"
)

// SleepFunc はコンテキスト付きの待機処理。テストでは記録用の実装に差し替える。
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep はdだけ待機する。待機中にコンテキストがキャンセルされた場合はそのエラーを返す。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer は外部サービス呼び出しの間に固定の待機を挟む。
// 外部サービスは呼び出し元単位で制限するため、1キュー内の呼び出しはこの間隔で直列化する。
type Pacer struct {
	delay time.Duration
	sleep SleepFunc
}

// NewPacer はPacerを生成する。sleepがnilの場合はSleepを使用する。
func NewPacer(delay time.Duration, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{delay: delay, sleep: sleep}
}

// Wait は設定された間隔だけ待機する。
func (p *Pacer) Wait(ctx context.Context) error {
	return p.sleep(ctx, p.delay)
}

// Delay は設定された間隔を返す。
func (p *Pacer) Delay() time.Duration {
	return p.delay
}
