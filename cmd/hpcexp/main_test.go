package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hpcexp/internal/diag"
	"hpcexp/internal/pipeline"
)

const (
	run0 = "ResNet50-cifar10-idun-A100-PyTorch-ngc2312-0.csv"
	run1 = "ResNet50-cifar10-idun-A100-PyTorch-ngc2312-1.csv"
	out  = "ResNet50-cifar10-idun-A100-PyTorch-ngc2312-combined.csv"
)

func row(first, seed, marker, last string) string {
	cols := make([]string, 19)
	cols[0] = first
	cols[10] = seed
	cols[17] = marker
	cols[18] = last
	return strings.Join(cols, ",")
}

func header() string               { return row("run_name", "seed", "marker", "accuracy") }
func control(v string) string      { return row("control", "", "123456789", v) }
func data(seed, acc string) string { return row("run", seed, "", acc) }

func writeCSV(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

// runIn 在临时工作目录中执行 CLI，返回退出码与输出。
func runIn(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	t.Chdir(dir)
	var stdout, stderr bytes.Buffer
	code := run(append(args, "--status=false"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCombineDefaultDir(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, run1, header(), control("42"), data("3", "0.7"))
	writeCSV(t, dir, run0, header(), control("42"), data("1", "0.9"), data("2", "0.8"))

	code, stdout, stderr := runIn(t, dir)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "combined 2 file(s) into 1 key(s): 3 row(s) appended")
	b, err := os.ReadFile(filepath.Join(dir, out))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, header(), lines[0])
	assert.Equal(t, data("1", "0.9"), lines[1])
	assert.Equal(t, data("3", "0.7"), lines[3])
	assert.DirExists(t, filepath.Join(dir, "logs"))
}

func TestCombineSubcommandDir(t *testing.T) {
	work := t.TempDir()
	results := filepath.Join(work, "results")
	require.NoError(t, os.Mkdir(results, 0o755))
	writeCSV(t, results, run0, header(), data("1", "0.9"))

	code, _, stderr := runIn(t, work, "combine", "results")
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(results, out))
}

func TestCombineControlMismatch(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, run0, header(), control("42"), data("1", "0.9"))
	writeCSV(t, dir, run1, header(), control("43"), data("2", "0.8"))

	code, _, stderr := runIn(t, dir)
	assert.Equal(t, exitRuntime, code)
	assert.True(t, strings.HasPrefix(stderr, "ERROR: control value mismatch\n"), stderr)
}

func TestCombineDuplicateSeed(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, run0, header(), data("1", "0.9"))
	writeCSV(t, dir, run1, header(), data("1", "0.8"))

	code, _, stderr := runIn(t, dir)
	assert.Equal(t, exitRuntime, code)
	assert.True(t, strings.HasPrefix(stderr, "ERROR: duplicate seed\n"), stderr)
}

func TestCombineSkipPolicyAndRehydrate(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, run0, header(), data("1", "0.9"))
	writeCSV(t, dir, run1, header(), data("1", "0.8"), data("2", "0.7"))

	code, stdout, stderr := runIn(t, dir, "--policy", "skip")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "1 failed")

	// rehydrate 后重复运行被拒绝
	code, _, stderr = runIn(t, dir, "combine", "--rehydrate")
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, stderr, "ERROR: duplicate seed")
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()
	code, _, stderr := runIn(t, dir, "--policy", "retry")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "配置校验失败")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hpcexp.yaml"), []byte("unknown: 1\n"), 0o644))
	code, _, stderr = runIn(t, dir)
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "配置解析失败")

	t.Setenv("HPCEXP_REHYDRATE", "maybe")
	code, _, _ = runIn(t, dir, "--config", filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, exitConfig, code)
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	code, _, _ := runIn(t, dir, "frobnicate")
	assert.Equal(t, exitUsage, code)
	code, _, _ = runIn(t, dir, "combine", "a", "b")
	assert.Equal(t, exitUsage, code)
	code, _, stderr := runIn(t, dir, "stats", "x.csv")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "column")
}

func TestInitConfigThenCombine(t *testing.T) {
	dir := t.TempDir()
	code, stdout, stderr := runIn(t, dir, "init-config")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "hpcexp.yaml")
	assert.FileExists(t, filepath.Join(dir, "hpcexp.yaml"))
	env, err := os.ReadFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(env), "HPCEXP_POLICY=")

	// 不覆盖
	code, _, _ = runIn(t, dir, "init-config", ".")
	assert.Equal(t, exitConfig, code)

	writeCSV(t, dir, run0, header(), data("1", "0.9"))
	code, _, stderr = runIn(t, dir)
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(dir, out))
}

func TestJobsSlurm(t *testing.T) {
	dir := t.TempDir()
	code, stdout, stderr := runIn(t, dir, "jobs", "slurm",
		"--num-job-files", "2", "--gpu", "V100", "--ml-framework", "PyTorch",
		"--model-name", "ViTB16", "--dataset-name", "cifar10_224", "--lr-scheduler",
		"--output-dir", "jobs")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Writing: job_0.slurm\nWriting: job_1.slurm\n")
	assert.Contains(t, stdout, "ViTB16-cifar10_224-idun-V100-PyTorch-ngc2312 Done!")
	b, err := os.ReadFile(filepath.Join(dir, "jobs", "job_1.slurm"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "pytorch_23.12-py3-1.1.1.sif")
	assert.Contains(t, string(b), "--lr-scheduler 1")

	code, _, stderr = runIn(t, dir, "jobs", "slurm", "--gpu", "H100")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "ERROR:")
}

func TestJobsSeeds(t *testing.T) {
	dir := t.TempDir()
	code, stdout, stderr := runIn(t, dir, "jobs", "seeds", "--runs", "5")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, 5, strings.Count(stdout, "Writing: seed-wrapper-"))
	assert.FileExists(t, filepath.Join(dir, "seed-wrapper-4.sh"))

	code, _, stderr = runIn(t, dir, "jobs", "seeds", "--runs", "3")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "divisible")
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, out, header(), data("1", "0.9"), data("2", "0.8"), data("3", "0.7"))
	code, stdout, stderr := runIn(t, dir, "stats", out, "--column", "accuracy", "--error", "--against", "seed")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "column    accuracy (error)\n")
	assert.Contains(t, stdout, "n         3\n")
	assert.Contains(t, stdout, "mean      0.2\n")
	assert.Contains(t, stdout, "pearson   1 (p ")
	assert.Contains(t, stdout, ", vs seed)\n")

	code, _, stderr = runIn(t, dir, "stats", out, "--column", "loss")
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, stderr, "not found")
}

func TestMetricsFile(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, run0, header(), data("1", "0.9"))
	prom := filepath.Join(dir, "hpcexp.prom")
	code, _, stderr := runIn(t, dir, "--metrics-file", prom)
	require.Equal(t, exitOK, code, stderr)
	b, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(b), "hpcexp_op_total")
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runIn(t, t.TempDir(), "version")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "hpcexp dev\n", stdout)
}

// 流水线被取消时不输出 ERROR 行，但仍以运行期错误退出
func TestCombineCancelled(t *testing.T) {
	orig := pipelineRun
	t.Cleanup(func() { pipelineRun = orig })
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) (pipeline.Summary, error) {
		return pipeline.Summary{}, context.Canceled
	}
	code, _, stderr := runIn(t, t.TempDir())
	assert.Equal(t, exitRuntime, code)
	assert.NotContains(t, stderr, "ERROR:")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
export HPCEXP_TEST_A="quoted value"
HPCEXP_TEST_B='single'
HPCEXP_TEST_C=plain
=novalue
HPCEXP_TEST_D
`), 0o644))
	t.Setenv("HPCEXP_TEST_C", "preset")
	t.Setenv("HPCEXP_TEST_A", "")
	require.NoError(t, os.Unsetenv("HPCEXP_TEST_A"))
	t.Setenv("HPCEXP_TEST_B", "")
	require.NoError(t, os.Unsetenv("HPCEXP_TEST_B"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "quoted value", os.Getenv("HPCEXP_TEST_A"))
	assert.Equal(t, "single", os.Getenv("HPCEXP_TEST_B"))
	assert.Equal(t, "preset", os.Getenv("HPCEXP_TEST_C"))
	_, ok := os.LookupEnv("HPCEXP_TEST_D")
	assert.False(t, ok)

	require.NoError(t, loadDotEnv(filepath.Join(dir, "missing")))
}
