package diag

import (
	"context"
	"encoding/csv"
	"errors"
	"os"

	"hpcexp/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeInvariant Code = "invariant"
	CodeInput     Code = "input"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 跨运行不变量：对照值、seed 唯一性
	if errors.Is(err, contract.ErrControlMismatch) ||
		errors.Is(err, contract.ErrDuplicateSeed) ||
		errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	// 输入形态问题：文件名、行结构、CSV 语法
	var perr *csv.ParseError
	if errors.Is(err, contract.ErrFileName) ||
		errors.Is(err, contract.ErrMalformedRow) ||
		errors.Is(err, contract.ErrHeaderMissing) ||
		errors.As(err, &perr) {
		return CodeInput
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return CodeIO
	}
	return CodeUnknown
}
