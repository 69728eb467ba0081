package diag

import "os"

// stderr 延迟解析 os.Stderr，测试替换后仍生效。
type stderr struct{}

func (stderr) Write(p []byte) (int, error) { return os.Stderr.Write(p) }
