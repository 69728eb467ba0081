package contract

import (
	"context"
	"io"
)

// ArtifactID: 与 FileID 等价的持久化工件标识（语义别名）。
type ArtifactID = FileID

// Writer: 整体写出一个工件（作业文件等），覆盖已有内容。
// 约束：同一 ArtifactID 单写者；ctx 取消需尽快返回；错误直接上抛。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

// Appender: 以追加方式持续写入一个工件（合并结果文件）。
// Exists 报告工件此前是否已存在；Append 返回的句柄由调用方关闭。
// 已写入的字节不回滚。
type Appender interface {
	Exists(ctx context.Context, id ArtifactID) (bool, error)
	Append(ctx context.Context, id ArtifactID) (io.WriteCloser, error)
}

// Store: 同一输出根目录上的整体写出与追加能力。
type Store interface {
	Writer
	Appender
}
