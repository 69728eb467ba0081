package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "hpcexp/internal/config"
)

func (c *cli) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default hpcexp.yaml and .env template into dir (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintf(c.stderr, "生成默认配置失败: %v\n", err)
				return fail(exitConfig, err)
			}
			cfgPath := filepath.Join(dir, "hpcexp.yaml")
			if err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig()); err != nil {
				fmt.Fprintf(c.stderr, "生成默认配置失败: %v\n", err)
				return fail(exitConfig, err)
			}
			fmt.Fprintf(c.stdout, "Writing: %s\n", cfgPath)
			// .env 模板失败不影响主配置
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fmt.Fprintf(c.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(c.stdout, "hpcexp %s\n", version)
		},
	}
}

// writeConfig 写出 YAML 配置；已存在则报错，不覆盖。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := cfgpkg.Marshal(c)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(b)
	return err
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# hpcexp .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > hpcexp.yaml\n")
	b.WriteString("# 空值表示未设置。\n\n")
	b.WriteString("HPCEXP_CONFIG_FILE=\n\n")
	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"DIR", "MARKER", "POLICY", "REHYDRATE"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 日志与指标\n")
	for _, k := range []string{"LOG_LEVEL", "LOG_DIR", "METRICS_TEXTFILE"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"COMPONENTS_READER", "COMPONENTS_WRITER"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
