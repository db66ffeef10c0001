// Package rotate は、日付に基づいてソースの優先順を回転させます。
package rotate

import (
	"strconv"
	"time"
)

// DayKey は t のローカル日付を YYYYMMDD 形式の整数で返します。
func DayKey(t time.Time) int {
	k, _ := strconv.Atoi(t.Format("20060102"))
	return k
}

// Order は、enabled の場合に sources を dayKey mod len だけ左回転した新しいスライスを返します。
// 無効な場合や空の場合は、元の順序のコピーを返します。
func Order(sources []string, enabled bool, dayKey int) []string {
	out := make([]string, 0, len(sources))
	n := len(sources)
	if !enabled || n == 0 {
		return append(out, sources...)
	}
	shift := ((dayKey % n) + n) % n
	out = append(out, sources[shift:]...)
	return append(out, sources[:shift]...)
}
