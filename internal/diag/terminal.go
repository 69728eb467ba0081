package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认 stderr）。
// - TTY: 当前文件以 \r 单行覆盖；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	dir       string
	filesDone int
	filesFail int
	rows      int
	curFile   string
	lastLen   int

	mu sync.Mutex
}

// NewTerminal 构造终端提示器；enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return t
}

// RunStart 记录运行上下文（工作目录）。
func (t *Terminal) RunStart(dir string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.dir = dir
	t.filesDone, t.filesFail, t.rows = 0, 0, 0
	t.println(fmt.Sprintf("[run] 目录=%s", safe(dir)))
}

// FileStart 标记当前文件。
func (t *Terminal) FileStart(fileID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.curFile = shortenBase(fileID, 64)
	if t.isTTY {
		t.printInline(fmt.Sprintf("[file] %s …", t.curFile))
		return
	}
	t.println(fmt.Sprintf("[file] %s", t.curFile))
}

// FileFinish 完成当前文件；status 为 done|skip|fail。
func (t *Terminal) FileFinish(status string, rows int, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if status == "done" {
		t.filesDone++
		t.rows += rows
	} else {
		t.filesFail++
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("[%s] %s | 行 %d | 用时 %s", status, t.curFile, rows, formatDur(dur)))
}

// RunFinish 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 全部完成 | 文件 %d | 跳过/失败 %d | 行 %d | 总用时 %s", tag, t.filesDone, t.filesFail, t.rows, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	// \r + 内容 + 空格清尾（新行比旧行短时）
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	base := filepath.Base(strings.TrimSpace(s))
	if max <= 0 || base == "." {
		return ""
	}
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
