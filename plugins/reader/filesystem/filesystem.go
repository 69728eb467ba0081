package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hpcexp/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `yaml:"buf_size"`
	// Pattern: 目录内匹配的文件名模式（filepath.Match 语法）。默认 "*.csv"。
	Pattern string `yaml:"pattern"`
	// ExcludeSubstrings: 文件名包含任一子串即跳过（区分大小写）。
	ExcludeSubstrings []string `yaml:"exclude_substrings"`
}

// FileSystem 基于目录扫描的 Reader：只看 root 的直接子项，不递归。
type FileSystem struct {
	bufSize int
	pattern string
	exclude []string
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	r := &FileSystem{bufSize: defaultBuf, pattern: "*.csv"}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	if strings.TrimSpace(opts.Pattern) != "" {
		r.pattern = strings.TrimSpace(opts.Pattern)
	}
	for _, s := range opts.ExcludeSubstrings {
		if s != "" {
			r.exclude = append(r.exclude, s)
		}
	}
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Iterate 遍历 roots；目录按文件名字典序对匹配文件调用 yield，单文件 root 直接 yield。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if len(roots) == 0 {
		roots = []string{"."}
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

// Match 报告文件名是否满足模式且未被排除。
func (r *FileSystem) Match(name string) bool {
	ok, err := filepath.Match(r.pattern, name)
	if err != nil || !ok {
		return false
	}
	for _, s := range r.exclude {
		if strings.Contains(name, s) {
			return false
		}
	}
	return true
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return nil
		}
		return r.open(root, yield)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	// 稳定顺序：字典序（决定表头来源与重复 seed 的先后）
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !r.Match(e.Name()) {
			continue
		}
		p := filepath.Join(root, e.Name())
		// 符号链接仅跟随到常规文件
		t, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			continue
		}
		if err := r.open(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) open(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(contract.NormalizeFileID(p), brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
