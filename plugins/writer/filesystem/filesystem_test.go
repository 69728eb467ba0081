package filesystem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hpcexp/pkg/contract"
)

// TestWriteAtomic 原子写入，且不残留临时文件
func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Write(context.Background(), "job_0.slurm", bytes.NewBufferString("v1")); err != nil {
		t.Fatalf("write v1: %v", err)
	}
	if err := w.Write(context.Background(), "job_0.slurm", bytes.NewBufferString("v2")); err != nil {
		t.Fatalf("write v2: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "job_0.slurm"))
	if err != nil || string(b) != "v2" {
		t.Fatalf("unexpected file %v %q", err, string(b))
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// TestWriteNonAtomic 非原子写入，可写子目录
func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	a := false
	w, _ := New(&Options{OutputDir: dir, Atomic: &a})
	if err := w.Write(context.Background(), "sub/out.txt", bytes.NewBufferString("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub", "out.txt")); err != nil {
		t.Fatalf("file not created")
	}
}

// TestPathInvalid 路径越界
func TestPathInvalid(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx := context.Background()
	if err := w.Write(ctx, "../bad", bytes.NewBufferString("x")); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
	if _, err := w.Append(ctx, "/abs.csv"); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
	if _, err := w.Exists(ctx, "."); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
}

// TestAppendAndExists 追加写：多次打开按顺序累积
func TestAppendAndExists(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	ctx := context.Background()
	const id = "A-B-C-D-E-F-combined.csv"

	ok, err := w.Exists(ctx, id)
	if err != nil || ok {
		t.Fatalf("expect missing, got %v %v", ok, err)
	}
	for _, s := range []string{"h\n", "r1\n", "r2\n"} {
		wc, err := w.Append(ctx, id)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if _, err := io.WriteString(wc, s); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := wc.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	ok, err = w.Exists(ctx, id)
	if err != nil || !ok {
		t.Fatalf("expect exists, got %v %v", ok, err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, id))
	if string(b) != "h\nr1\nr2\n" {
		t.Fatalf("unexpected content %q", string(b))
	}
}

// TestExistsDirectory 目标为目录时报错
func TestExistsDirectory(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "x.csv"), 0o755)
	w, _ := New(&Options{OutputDir: dir})
	if _, err := w.Exists(context.Background(), "x.csv"); err == nil {
		t.Fatalf("expect error for directory")
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.txt", strings.NewReader("data")); err == nil {
		t.Fatalf("expect ctx error")
	}
	if _, err := w.Append(ctx, "a.csv"); err == nil {
		t.Fatalf("expect ctx error")
	}
}

// TestNewInvalid 参数缺失
func TestNewInvalid(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expect error for nil opts")
	}
	if _, err := New(&Options{}); err == nil {
		t.Fatalf("expect error for empty output dir")
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 原子写入时拷贝失败，不留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	if err := w.Write(context.Background(), "a.txt", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}
