package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：正斜杠分隔；清理多余分隔符与 . / ..；不做隐式绝对化。
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}
