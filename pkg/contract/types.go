package contract

// FileID: 逻辑文件ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Base 返回 FileID 的最后一段（文件名）。
func (id FileID) Base() string {
	s := string(id)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return s[i+1:]
		}
	}
	return s
}

// Row: 一条结果记录（CSV 字段序列，按位置寻址）。
type Row []string

// Clone 复制行，避免 csv.Reader 复用底层切片导致的别名问题。
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Last 返回最后一个字段；空行返回 ""。
func (r Row) Last() string {
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}
