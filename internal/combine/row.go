package combine

import (
	"fmt"

	"hpcexp/pkg/contract"
)

// 行布局（0 基字段序号）。
const (
	HeaderSentinel  = "run_name"
	ControlSentinel = "123456789"

	SeedField            = 10
	ControlField         = 17
	ControlFieldFallback = 16
)

// Kind: 行分类。
type Kind int

const (
	KindHeader Kind = iota
	KindControl
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindControl:
		return "control"
	default:
		return "data"
	}
}

// Classify 判定行类型。
// 表头：字段 0 为 run_name；对照行：字段 17（缺失时字段 16）为哨兵值；其余为数据行。
// 数据行至少需要 seed 字段，否则返回 ErrMalformedRow。
func Classify(row contract.Row) (Kind, error) {
	if len(row) == 0 {
		return KindData, fmt.Errorf("%w: empty row", contract.ErrMalformedRow)
	}
	if row[0] == HeaderSentinel {
		return KindHeader, nil
	}
	if isControl(row) {
		return KindControl, nil
	}
	if len(row) <= SeedField {
		return KindData, fmt.Errorf("%w: %d fields, seed at index %d", contract.ErrMalformedRow, len(row), SeedField)
	}
	return KindData, nil
}

func isControl(row contract.Row) bool {
	if len(row) > ControlField && row[ControlField] == ControlSentinel {
		return true
	}
	return len(row) > ControlFieldFallback && row[ControlFieldFallback] == ControlSentinel
}

// Seed 返回数据行的 seed 字段。
func Seed(row contract.Row) string { return row[SeedField] }
