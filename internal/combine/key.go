package combine

import (
	"fmt"
	"strings"

	"hpcexp/pkg/contract"
)

// DefaultMarker 标记合并产物文件名；名称含该子串的 CSV 不作为输入。
const DefaultMarker = "combined"

const csvExt = ".csv"

// Key: 配置键，即一次实验的身份（model, dataset, cluster, gpu, framework, environment[, additional]）。
// 同一 Key 的多个运行仅 seed 不同。
type Key struct {
	Model       string
	Dataset     string
	Cluster     string
	GPU         string
	Framework   string
	Environment string
	// Additional: 可选消歧分量（8 段文件名的第 7 段）；空表示无。
	Additional string
}

func (k Key) parts() []string {
	p := []string{k.Model, k.Dataset, k.Cluster, k.GPU, k.Framework, k.Environment}
	if k.Additional != "" {
		p = append(p, k.Additional)
	}
	return p
}

// String 返回以连字符拼接的键。
func (k Key) String() string { return strings.Join(k.parts(), "-") }

// CombinedName 返回该键的合并文件名：<key>-<marker>.csv。
func (k Key) CombinedName(marker string) contract.ArtifactID {
	if marker == "" {
		marker = DefaultMarker
	}
	return contract.ArtifactID(k.String() + "-" + marker + csvExt)
}

// ParseFileName 解析结果文件名 model-dataset-cluster-gpu-framework-environment[-additional]-run.csv。
// 7 段：前 6 段为键、第 7 段为 run；8 段：第 7 段为 additional、第 8 段为 run；其余返回 ErrFileName。
func ParseFileName(name string) (Key, string, error) {
	stem := strings.TrimSuffix(name, csvExt)
	parts := strings.Split(stem, "-")
	switch len(parts) {
	case 7:
		return keyOf(parts[:6], ""), parts[6], nil
	case 8:
		return keyOf(parts[:6], parts[6]), parts[7], nil
	default:
		return Key{}, "", fmt.Errorf("%w: %q has %d components, want 7 or 8", contract.ErrFileName, name, len(parts))
	}
}

// ParseCombinedName 由合并文件名反推配置键（6 或 7 段 + marker）。
func ParseCombinedName(name, marker string) (Key, error) {
	if marker == "" {
		marker = DefaultMarker
	}
	stem := strings.TrimSuffix(name, csvExt)
	suffix := "-" + marker
	if !strings.HasSuffix(stem, suffix) {
		return Key{}, fmt.Errorf("%w: %q lacks %q suffix", contract.ErrFileName, name, suffix)
	}
	parts := strings.Split(strings.TrimSuffix(stem, suffix), "-")
	switch len(parts) {
	case 6:
		return keyOf(parts, ""), nil
	case 7:
		return keyOf(parts[:6], parts[6]), nil
	default:
		return Key{}, fmt.Errorf("%w: %q has %d key components, want 6 or 7", contract.ErrFileName, name, len(parts))
	}
}

func keyOf(p []string, additional string) Key {
	return Key{
		Model:       p[0],
		Dataset:     p[1],
		Cluster:     p[2],
		GPU:         p[3],
		Framework:   p[4],
		Environment: p[5],
		Additional:  additional,
	}
}
