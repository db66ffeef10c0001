package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrEmptyBody は成功ステータスでもボディが空だった場合のエラーです (リトライ対象)。
	ErrEmptyBody = errors.New("レスポンスボディが空です")

	errInvalidRequest = errors.New("リクエスト作成に失敗しました")
)

// blockMarkers は、チャレンジページ・CAPTCHA を示す本文中の目印です (小文字)。
var blockMarkers = []string{
	"captcha",
	"are you a robot",
	"complete the security check",
}

// maxErrorBodyLen はエラーメッセージに含めるボディの最大長です。
const maxErrorBodyLen = 256

// Outcome は1回の取得結果の分類です。
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSoftFailure
	OutcomeBlocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftFailure:
		return "soft-failure"
	case OutcomeBlocked:
		return "block-signal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Classify はステータスコードと本文から取得結果を分類します。
// ブロックと判定した場合は、該当した目印 (ステータスの場合は空文字) を併せて返します。
func Classify(status int, body []byte) (Outcome, string) {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		return OutcomeBlocked, ""
	}
	if marker := findBlockMarker(body); marker != "" {
		return OutcomeBlocked, marker
	}
	if status >= 200 && status < 400 && len(body) > 0 {
		return OutcomeSuccess, ""
	}
	return OutcomeSoftFailure, ""
}

func findBlockMarker(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	lower := bytes.ToLower(body)
	for _, m := range blockMarkers {
		if bytes.Contains(lower, []byte(m)) {
			return m
		}
	}
	return ""
}

// BlockedError はレート制限やチャレンジページを検知したことを示すエラーです。
type BlockedError struct {
	URL        string
	StatusCode int
	Marker     string
}

func (e *BlockedError) Error() string {
	if e.Marker != "" {
		return fmt.Sprintf("ブロックシグナルを検知しました (URL: %s, ステータスコード %d, 目印: %q)", e.URL, e.StatusCode, e.Marker)
	}
	return fmt.Sprintf("ブロックシグナルを検知しました (URL: %s, ステータスコード %d)", e.URL, e.StatusCode)
}

// IsBlocked は与えられたエラーがブロックシグナルであるかを判断します。
func IsBlocked(err error) bool {
	if err == nil {
		return false
	}
	var blocked *BlockedError
	return errors.As(err, &blocked)
}

// StatusError はリトライ対象のエラーステータスを示します。
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("HTTPステータスコードエラー: %d (URL: %s), ボディなし", e.StatusCode, e.URL)
	}
	if len(body) > maxErrorBodyLen {
		body = body[:maxErrorBodyLen] + "..."
	}
	return fmt.Sprintf("HTTPステータスコードエラー: %d (URL: %s), ボディ: %s", e.StatusCode, e.URL, body)
}
