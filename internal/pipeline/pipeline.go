package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"hpcexp/internal/combine"
	"hpcexp/internal/diag"
	"hpcexp/pkg/contract"
)

// - 单线程：文件按 Reader 给出的字典序逐个处理，状态只在本次运行内有效。
// - 即时落盘：被接受的行立刻追加到合并文件，出错不回滚。
// - 首错返回：halt 策略下第一个违例即停止并返回；skip 策略下记录后继续。

// Policy 违例处理策略。
type Policy string

const (
	PolicyHalt Policy = "halt"
	PolicySkip Policy = "skip"
)

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	Store  contract.Store
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Dir: 结果文件所在目录；OutputDir: 合并文件所在目录（rehydrate 从这里读取）。
	Dir       string
	OutputDir string
	Marker    string
	Policy    Policy
	Rehydrate bool
	// Status: 终端提示（可为 nil）。
	Status *diag.Terminal
}

// Summary 汇总一次运行。
type Summary struct {
	Files      int // 成功处理的结果文件
	Skipped    int // 文件名无法识别而跳过
	Failed     int // skip 策略下因违例跳过
	Created    int // 新建的合并文件
	Accepted   int // 追加的数据行
	Controls   int // 校验过的对照行
	Rehydrated int // 从已有合并文件恢复的 seed
	Keys       int
}

// Run 执行一次合并：(可选 rehydrate) → 逐文件 ProcessFile。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Summary, error) {
	var sum Summary
	start := time.Now()
	if err := sanity(comp, set); err != nil {
		return sum, fmt.Errorf("sanity: %w", err)
	}
	marker := set.Marker
	if marker == "" {
		marker = combine.DefaultMarker
	}
	policy := set.Policy
	if policy == "" {
		policy = PolicyHalt
	}
	outDir := set.OutputDir
	if outDir == "" {
		outDir = set.Dir
	}

	state := combine.NewState()
	proc := combine.NewProcessor(state, comp.Store, marker)

	if set.Rehydrate {
		n, err := rehydrate(ctx, comp.Reader, proc, outDir, marker, policy, logger)
		sum.Rehydrated = n
		if err != nil {
			return sum, err
		}
	}

	set.Status.RunStart(set.Dir)
	err := comp.Reader.Iterate(ctx, []string{set.Dir}, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		name := id.Base()
		if strings.Contains(name, marker) {
			logger.DebugStart("combine", "exclude", string(id), map[string]string{"marker": marker})
			return nil
		}
		set.Status.FileStart(string(id))
		t0 := time.Now()
		timer := logger.StartWith("combine", "process", string(id), nil)

		res, perr := proc.ProcessFile(ctx, id, rc)
		diag.AddRows("data", res.Accepted)
		diag.AddRows("control", res.Controls)
		diag.ObserveDuration("combine", "process", time.Since(t0))
		if res.Created {
			sum.Created++
		}
		sum.Accepted += res.Accepted
		sum.Controls += res.Controls

		if perr == nil {
			sum.Files++
			timer.FinishKV("process", int64(res.Accepted), map[string]string{
				"key":      res.Key.String(),
				"run":      res.Run,
				"output":   string(res.Output),
				"created":  strconv.FormatBool(res.Created),
				"controls": strconv.Itoa(res.Controls),
			})
			diag.IncOp("combine", "finish", "success")
			set.Status.FileFinish("done", res.Accepted, time.Since(t0))
			return nil
		}

		code := diag.Classify(perr)
		diag.IncError("combine", code)
		// 无法识别的文件名总是跳过
		if errors.Is(perr, contract.ErrFileName) {
			sum.Skipped++
			logger.Warn("combine", string(code), "skip file", string(id), map[string]string{"reason": perr.Error()})
			diag.IncOp("combine", "skip", "skip")
			set.Status.FileFinish("skip", 0, time.Since(t0))
			return nil
		}
		logger.ErrorWith("combine", string(code), "process failed", &t0, string(id), map[string]string{"error": perr.Error()})
		diag.IncOp("combine", "error", "error")
		set.Status.FileFinish("fail", res.Accepted, time.Since(t0))
		if policy == PolicySkip && skippable(code) {
			sum.Failed++
			return nil
		}
		return perr
	})
	sum.Keys = state.Keys()
	set.Status.RunFinish(err == nil, time.Since(start))
	return sum, err
}

// rehydrate 读取已有合并文件，把 seed 与对照值预先登记进状态。
func rehydrate(ctx context.Context, r contract.Reader, proc *combine.Processor, dir, marker string, policy Policy, logger *diag.Logger) (int, error) {
	timer := logger.StartWith("combine", "rehydrate", "", map[string]string{"dir": dir})
	total := 0
	err := r.Iterate(ctx, []string{dir}, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		if !strings.Contains(id.Base(), marker) {
			return nil
		}
		n, err := proc.Rehydrate(ctx, id, rc)
		total += n
		if err == nil {
			logger.DebugStart("combine", "rehydrated", string(id), map[string]string{"seeds": strconv.Itoa(n)})
			return nil
		}
		code := diag.Classify(err)
		diag.IncError("combine", code)
		if errors.Is(err, contract.ErrFileName) {
			logger.Warn("combine", string(code), "skip combined file", string(id), map[string]string{"reason": err.Error()})
			return nil
		}
		logger.ErrorWith("combine", string(code), "rehydrate failed", nil, string(id), map[string]string{"error": err.Error()})
		if policy == PolicySkip && skippable(code) {
			return nil
		}
		return err
	})
	// 输出目录尚不存在：没有可恢复的内容
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	if err != nil {
		return total, err
	}
	timer.Finish("rehydrate", int64(total))
	diag.IncOp("combine", "rehydrate", "success")
	return total, nil
}

// skippable: skip 策略下可以越过的错误类别（不含 IO 与取消）。
func skippable(code diag.Code) bool {
	return code == diag.CodeInvariant || code == diag.CodeInput
}

func sanity(comp Components, set Settings) error {
	if comp.Reader == nil || comp.Store == nil {
		return errors.New("nil component")
	}
	if strings.TrimSpace(set.Dir) == "" {
		return errors.New("empty dir")
	}
	switch set.Policy {
	case "", PolicyHalt, PolicySkip:
	default:
		return fmt.Errorf("unknown policy %q", set.Policy)
	}
	if strings.Contains(set.Marker, "-") {
		return fmt.Errorf("marker %q must not contain '-'", set.Marker)
	}
	return nil
}
