package contract

import "errors"

// 合并/写出相关最小错误分类。调用方以 errors.Is 判定，消息中附带文件与键上下文。
var (
	// ErrControlMismatch: 同一配置键下的对照值（control value）跨运行不一致。
	ErrControlMismatch = errors.New("control value mismatch")
	// ErrDuplicateSeed: 同一配置键下出现重复的 seed。
	ErrDuplicateSeed = errors.New("duplicate seed")
	// ErrFileName: 结果文件名无法解析为配置键（分段数既非 7 也非 8）。
	ErrFileName = errors.New("unrecognized result file name")
	// ErrMalformedRow: 行字段数不足以定位 seed/对照标记。
	ErrMalformedRow = errors.New("malformed row")
	// ErrHeaderMissing: 新建合并文件时，数据行先于表头出现。
	ErrHeaderMissing = errors.New("header row missing")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
