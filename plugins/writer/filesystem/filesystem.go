package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"hpcexp/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `yaml:"output_dir"`
	// Atomic: Write 是否使用原子替换（同目录临时文件 + rename）。默认 true。
	Atomic *bool `yaml:"atomic,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认 0644/0755。
	PermFile os.FileMode `yaml:"perm_file,omitempty"`
	PermDir  os.FileMode `yaml:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用默认 64KiB。
	BufSize int `yaml:"buf_size,omitempty"`
}

// FS 是文件系统 Writer/Appender：作业文件整体写出，合并结果以追加方式写入。
type FS struct {
	root    string
	atomic  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer 实现。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, os.ErrInvalid
	}
	w := &FS{root: opts.OutputDir, atomic: true, permF: 0o644, permD: 0o755, bufSize: 64 * 1024}
	if opts.BufSize > 0 {
		w.bufSize = opts.BufSize
	}
	if opts.PermFile != 0 {
		w.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		w.permD = opts.PermDir
	}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	return w, nil
}

var (
	_ contract.Writer   = (*FS)(nil)
	_ contract.Appender = (*FS)(nil)
)

// Root 返回输出根目录。
func (w *FS) Root() string { return w.root }

// Write 将 r 的全部字节写入到基于 id 映射的目标路径（覆盖）。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// Exists 报告目标是否已存在（常规文件）。
func (w *FS) Exists(ctx context.Context, id contract.ArtifactID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return false, err
	}
	st, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if st.IsDir() {
		return false, &fs.PathError{Op: "exists", Path: dest, Err: errors.New("is a directory")}
	}
	return true, nil
}

// Append 以追加模式打开目标（不存在则创建）。每次 Write 直接落到文件，不做缓冲。
func (w *FS) Append(ctx context.Context, id contract.ArtifactID) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return nil, err
	}
	return os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, w.permF)
}

// mapPath: Clean + Join + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if rel == "." || rel == "" {
		return "", contract.ErrPathInvalid
	}
	if filepath.IsAbs(rel) {
		return "", contract.ErrPathInvalid
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", contract.ErrPathInvalid
	}
	if vol := filepath.VolumeName(rel); vol != "" {
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
