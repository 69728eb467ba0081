package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"hpcexp/internal/combine"
	"hpcexp/internal/diag"
	"hpcexp/pkg/contract"
	rfs "hpcexp/plugins/reader/filesystem"
	wfs "hpcexp/plugins/writer/filesystem"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const width = 19

func header() string {
	cols := make([]string, width)
	cols[0] = combine.HeaderSentinel
	for i := 1; i < width; i++ {
		cols[i] = "h" + string(rune('a'+i))
	}
	return strings.Join(cols, ",")
}

func data(seed string) string {
	cols := make([]string, width)
	cols[0] = "run"
	cols[combine.SeedField] = seed
	cols[width-1] = "0.5"
	return strings.Join(cols, ",")
}

func control(v string) string {
	cols := make([]string, width)
	cols[0] = "control"
	cols[combine.ControlField] = combine.ControlSentinel
	cols[width-1] = v
	return strings.Join(cols, ",")
}

func writeFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	recs, err := cr.ReadAll()
	require.NoError(t, err)
	return recs
}

func seeds(recs [][]string) []string {
	var out []string
	for _, r := range recs[1:] {
		out = append(out, r[combine.SeedField])
	}
	return out
}

func components(t *testing.T, dir string) Components {
	t.Helper()
	w, err := wfs.New(&wfs.Options{OutputDir: dir})
	require.NoError(t, err)
	return Components{Reader: rfs.New(nil), Store: w}
}

const (
	run0  = "resnet50-cifar10-idun-A100-PyTorch-ngc2312-0.csv"
	run1  = "resnet50-cifar10-idun-A100-PyTorch-ngc2312-1.csv"
	run2  = "resnet50-cifar10-idun-A100-PyTorch-ngc2312-2.csv"
	other = "vit-imagenet-idun-V100-TensorFlow-ngc2312-xla-0.csv"
	out   = "resnet50-cifar10-idun-A100-PyTorch-ngc2312-combined.csv"
)

func TestRunCombinesInLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	// 故意倒序写入，验证按文件名排序处理
	writeFile(t, dir, run1, header(), control("42"), data("3"))
	writeFile(t, dir, run0, header(), control("42"), data("1"), data("2"))
	writeFile(t, dir, other, header(), control("7"), data("9"))
	writeFile(t, dir, "notes.csv", "x,y")
	writeFile(t, dir, "old-combined.csv", "ignored")

	sum, err := Run(context.Background(), components(t, dir), Settings{Dir: dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Files)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Created)
	assert.Equal(t, 4, sum.Accepted)
	assert.Equal(t, 3, sum.Controls)
	assert.Equal(t, 2, sum.Keys)

	recs := readCSV(t, filepath.Join(dir, out))
	assert.Equal(t, combine.HeaderSentinel, recs[0][0])
	assert.Equal(t, []string{"1", "2", "3"}, seeds(recs))

	recs = readCSV(t, filepath.Join(dir, "vit-imagenet-idun-V100-TensorFlow-ngc2312-xla-combined.csv"))
	assert.Equal(t, []string{"9"}, seeds(recs))
}

func TestRunControlMismatchHalts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, run0, header(), control("42"), data("1"))
	writeFile(t, dir, run1, header(), control("43"), data("2"))
	writeFile(t, dir, run2, header(), control("42"), data("3"))

	sum, err := Run(context.Background(), components(t, dir), Settings{Dir: dir, Policy: PolicyHalt}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrControlMismatch))
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, []string{"1"}, seeds(readCSV(t, filepath.Join(dir, out))))
}

func TestRunDuplicateSeedKeepsAppendedRows(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, run0, header(), data("1"))
	writeFile(t, dir, run1, header(), data("2"), data("1"), data("5"))

	_, err := Run(context.Background(), components(t, dir), Settings{Dir: dir}, nil)
	require.ErrorIs(t, err, contract.ErrDuplicateSeed)
	// 已追加的 seed 2 不回滚，5 未被处理
	assert.Equal(t, []string{"1", "2"}, seeds(readCSV(t, filepath.Join(dir, out))))
}

func TestRunSkipPolicyContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, run0, header(), control("42"), data("1"))
	writeFile(t, dir, run1, header(), control("43"), data("2"))
	writeFile(t, dir, run2, header(), control("42"), data("3"))

	var buf strings.Builder
	term := diag.NewTerminal(&buf, true)
	sum, err := Run(context.Background(), components(t, dir), Settings{Dir: dir, Policy: PolicySkip, Status: term}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Files)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []string{"1", "3"}, seeds(readCSV(t, filepath.Join(dir, out))))
	assert.Contains(t, buf.String(), "[fail] "+run1)
	assert.Contains(t, buf.String(), "[ok] 全部完成")
}

func TestRunRerun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, run0, header(), control("42"), data("1"), data("2"))
	_, err := Run(context.Background(), components(t, dir), Settings{Dir: dir}, nil)
	require.NoError(t, err)

	// rehydrate：重复运行在第一行即被拒绝，合并文件不变
	sum, err := Run(context.Background(), components(t, dir), Settings{Dir: dir, Rehydrate: true}, nil)
	require.ErrorIs(t, err, contract.ErrDuplicateSeed)
	assert.Equal(t, 2, sum.Rehydrated)
	assert.Equal(t, []string{"1", "2"}, seeds(readCSV(t, filepath.Join(dir, out))))

	// 新的运行文件在 rehydrate 下正常追加
	require.NoError(t, os.Remove(filepath.Join(dir, run0)))
	writeFile(t, dir, run1, header(), control("42"), data("3"))
	_, err = Run(context.Background(), components(t, dir), Settings{Dir: dir, Rehydrate: true}, nil)
	require.NoError(t, err)
	recs := readCSV(t, filepath.Join(dir, out))
	assert.Equal(t, []string{"1", "2", "3"}, seeds(recs))
	assert.Equal(t, combine.HeaderSentinel, recs[0][0])
	assert.Len(t, recs, 4)

	// 默认（不 rehydrate）：状态从空开始，重复行被再次追加
	_, err = Run(context.Background(), components(t, dir), Settings{Dir: dir}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "3"}, seeds(readCSV(t, filepath.Join(dir, out))))
}

func TestRunRehydrateMissingOutputDir(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "not-yet")
	writeFile(t, dir, run0, header(), data("1"))
	w, err := wfs.New(&wfs.Options{OutputDir: outDir})
	require.NoError(t, err)
	sum, err := Run(context.Background(), Components{Reader: rfs.New(nil), Store: w},
		Settings{Dir: dir, OutputDir: outDir, Rehydrate: true}, nil)
	require.NoError(t, err)
	assert.Zero(t, sum.Rehydrated)
	assert.FileExists(t, filepath.Join(outDir, out))
}

func TestRunHeaderMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, run0, data("1"))
	_, err := Run(context.Background(), components(t, dir), Settings{Dir: dir}, nil)
	require.ErrorIs(t, err, contract.ErrHeaderMissing)
	assert.NoFileExists(t, filepath.Join(dir, out))
}

func TestRunLogsEvents(t *testing.T) {
	dir := t.TempDir()
	logDir := t.TempDir()
	writeFile(t, dir, run0, header(), data("1"))
	writeFile(t, dir, "bad.csv", "x")
	logger := diag.NewLogger("t", "debug", logDir)
	_, err := Run(context.Background(), components(t, dir), Settings{Dir: dir}, logger)
	require.NoError(t, err)
	require.NoError(t, logger.Sync())
	b, err := os.ReadFile(filepath.Join(logDir, "hpcexp-current.txt"))
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, `"stage":"finish"`)
	assert.Contains(t, s, `"code":"input"`)
	assert.Contains(t, s, `"file_id"`)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, run0, header(), data("1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, components(t, dir), Settings{Dir: dir}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSanity(t *testing.T) {
	_, err := Run(context.Background(), Components{}, Settings{Dir: "."}, nil)
	assert.Error(t, err)
	dir := t.TempDir()
	_, err = Run(context.Background(), components(t, dir), Settings{Dir: dir, Policy: "retry"}, nil)
	assert.Error(t, err)
	_, err = Run(context.Background(), components(t, dir), Settings{Dir: dir, Marker: "com-bined"}, nil)
	assert.Error(t, err)
}
