// Package quota は、全体の件数上限をソースごとの割り当てに分配します。
package quota

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoSources はソースが1件も指定されていない場合のエラーです。
	ErrNoSources = errors.New("ソースが指定されていません")
	// ErrInvalidCycles はサイクル数が1未満の場合のエラーです。
	ErrInvalidCycles = errors.New("サイクル数は1以上である必要があります")
	// ErrInvalidLimit は上書き指定がなく、件数上限が正でない場合のエラーです。
	ErrInvalidLimit = errors.New("件数上限は1以上である必要があります")
)

// Allocation は、ひとつのソースへの割り当てです。
type Allocation struct {
	Total    int // 実行全体での上限 (0 のソースはスケジュールされません)
	PerCycle int // 1サイクルで依頼する最大件数 (常に1以上)
}

// Plan は、ソースIDごとの割り当てです。
type Plan map[string]Allocation

// Sum は全ソースの Total の合計を返します。合計は math.MaxInt で頭打ちになります。
func (p Plan) Sum() int {
	sum := 0
	for _, a := range p {
		if a.Total > math.MaxInt-sum {
			return math.MaxInt
		}
		sum += a.Total
	}
	return sum
}

// New は割り当てを計算します。
// overrides が空でない場合はそれが優先され、記載のないソースは 0 件になります。
// 空の場合は limit を均等に切り上げ分配します。重複したソースIDは最初の1件として扱います。
func New(limit int, sources []string, overrides map[string]int, cycles int) (Plan, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if cycles < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCycles, cycles)
	}
	if len(overrides) == 0 && limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	unique := make([]string, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}

	each := ceilDiv(limit, len(unique))
	plan := make(Plan, len(unique))
	for _, s := range unique {
		total := each
		if len(overrides) > 0 {
			total = max(0, overrides[s])
		}
		plan[s] = Allocation{
			Total:    total,
			PerCycle: max(1, ceilDiv(total, cycles)),
		}
	}
	return plan, nil
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
