package contract

import (
	"context"
	"io"
)

// Reader: 结果文件来源抽象。
// 约束：
// 1) 按文件回调，回调方负责关闭 ReadCloser；
// 2) 同一 root 内按文件名字典序稳定输出；
// 3) 只提供字节流，不解析 CSV；
// 4) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
