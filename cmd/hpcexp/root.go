package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "hpcexp/internal/config"
	"hpcexp/internal/diag"
	"hpcexp/internal/pipeline"
	"hpcexp/pkg/contract"
)

var pipelineRun = pipeline.Run

// cli 持有一次调用的旗标与输出端。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	corrID string

	configPath  string
	logLevel    string
	metricsFile string
	status      bool

	policy    string
	marker    string
	rehydrate bool
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hpcexp",
		Short: "HPC experiment utilities: combine result CSVs, generate job files, summarise results",
		Long: `hpcexp folds per-run result CSV files into one combined file per configuration key,
deduplicating by seed and checking the shared control value.

Without a subcommand it combines the current directory.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCombine(cmd, "")
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "配置文件路径（YAML）；缺省读取 $HPCEXP_CONFIG_FILE 或 ./hpcexp.yaml（若存在）")
	pf.StringVar(&c.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.StringVar(&c.metricsFile, "metrics-file", "", "退出时以 textfile 格式写出指标的路径（覆盖配置）")
	pf.BoolVar(&c.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.StringVar(&c.policy, "policy", "", "违例处理策略 halt|skip（覆盖配置）")
	pf.StringVar(&c.marker, "marker", "", "合并文件名标记（覆盖配置）")
	pf.BoolVar(&c.rehydrate, "rehydrate", false, "运行前从已有合并文件恢复 seed 与对照值")

	root.AddCommand(
		c.combineCmd(),
		c.jobsCmd(),
		c.statsCmd(),
		c.initConfigCmd(),
		c.versionCmd(),
	)
	return root
}

func (c *cli) combineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "combine [dir]",
		Short: "Combine per-run result CSVs in dir (default: configured dir or .)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return c.runCombine(cmd, dir)
		},
	}
}

// loadConfig 按 Defaults → 文件 → ENV → CLI 合并配置并校验。
func (c *cli) loadConfig(cmd *cobra.Command, dir string) (cfgpkg.Config, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv("HPCEXP_CONFIG_FILE")
	}
	// 默认读取工作目录下 hpcexp.yaml（若存在）
	if path == "" {
		if _, err := os.Stat("hpcexp.yaml"); err == nil {
			path = "hpcexp.yaml"
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" {
		base, err := cfgpkg.LoadFile(path, nil)
		if err != nil {
			return cfg, fmt.Errorf("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, fmt.Errorf("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	overCLI := cfgpkg.Config{
		Dir:     dir,
		Marker:  c.marker,
		Policy:  c.policy,
		Logging: cfgpkg.Logging{Level: c.logLevel},
		Metrics: cfgpkg.Metrics{Textfile: c.metricsFile},
	}
	if cmd.Flags().Changed("rehydrate") {
		v := c.rehydrate
		overCLI.Rehydrate = &v
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	if err := cfgpkg.Validate(cfg); err != nil {
		return cfg, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

// setup 载入配置并构造日志器；失败时已输出消息并映射为配置类退出码。
func (c *cli) setup(cmd *cobra.Command, dir string) (cfgpkg.Config, *diag.Logger, error) {
	cfg, err := c.loadConfig(cmd, dir)
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		if b, merr := cfgpkg.Marshal(cfg); merr == nil {
			fmt.Fprintf(c.stderr, "有效配置:\n%s", b)
		}
		return cfg, nil, fail(exitConfig, err)
	}
	return cfg, diag.NewLogger(c.corrID, cfg.Logging.Level, cfg.Logging.Dir), nil
}

func (c *cli) runCombine(cmd *cobra.Command, dir string) error {
	start := time.Now()
	cfg, logger, err := c.setup(cmd, dir)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
		c.writeMetrics(cfg)
	}()

	// 预检：输出目录的可写性
	outDir := cfgpkg.OutputDir(cfg)
	if perr := preflightCheckOutputDir(outDir); perr != nil {
		fmt.Fprintf(c.stderr, "输出目录不可写或无法创建: %v\n", perr)
		logger.Error("pipeline", string(diag.Classify(perr)), "preflight failed", &start)
		return fail(exitConfig, perr)
	}
	comp, set, aerr := cfgpkg.Assemble(cfg)
	if aerr != nil {
		fmt.Fprintf(c.stderr, "装配失败: %v\n", aerr)
		logger.Error("pipeline", string(diag.Classify(aerr)), "assemble failed", &start)
		return fail(exitConfig, aerr)
	}
	set.Status = diag.NewTerminal(c.stderr, c.status)

	logger.DebugStart("config", "effective", "", map[string]string{
		"dir":        cfg.Dir,
		"output_dir": outDir,
		"marker":     cfg.Marker,
		"policy":     cfg.Policy,
		"rehydrate":  strconv.FormatBool(cfg.RehydrateEnabled()),
		"reader":     cfg.Components.Reader,
		"writer":     cfg.Components.Writer,
	})

	t := logger.Start("pipeline", "run")
	sum, rerr := pipelineRun(cmd.Context(), comp, set, logger)
	if rerr != nil {
		code := diag.Classify(rerr)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		diag.IncError("pipeline", code)
		if !errors.Is(rerr, context.Canceled) {
			fmt.Fprintln(c.stderr, errorLine(rerr))
			fmt.Fprintf(c.stderr, "  %v\n", rerr)
		}
		return fail(exitRuntime, rerr)
	}
	t.FinishKV("run", int64(sum.Files), map[string]string{
		"skipped":    strconv.Itoa(sum.Skipped),
		"failed":     strconv.Itoa(sum.Failed),
		"accepted":   strconv.Itoa(sum.Accepted),
		"rehydrated": strconv.Itoa(sum.Rehydrated),
	})
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start))
	fmt.Fprintf(c.stdout, "combined %d file(s) into %d key(s): %d row(s) appended, %d new file(s), %d skipped, %d failed\n",
		sum.Files, sum.Keys, sum.Accepted, sum.Created, sum.Skipped, sum.Failed)
	return nil
}

// errorLine 返回面向用户的首行错误消息。
func errorLine(err error) string {
	switch {
	case errors.Is(err, contract.ErrControlMismatch):
		return "ERROR: control value mismatch"
	case errors.Is(err, contract.ErrDuplicateSeed):
		return "ERROR: duplicate seed"
	case errors.Is(err, contract.ErrHeaderMissing):
		return "ERROR: header row missing"
	case errors.Is(err, contract.ErrMalformedRow):
		return "ERROR: malformed row"
	default:
		return "ERROR: combine failed"
	}
}

func (c *cli) writeMetrics(cfg cfgpkg.Config) {
	if err := diag.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		fmt.Fprintf(c.stderr, "提示：指标写出失败（已跳过）：%v\n", err)
	}
}

// preflightCheckOutputDir 启动前检查输出目录可写性。
// - 目录已存在：尝试创建并删除临时文件；
// - 目录不存在：检查父目录可写（尝试在父目录创建并删除临时目录）。
func preflightCheckOutputDir(dir string) error {
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(filepath.Clean(dir))
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}
