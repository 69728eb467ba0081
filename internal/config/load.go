package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Dir:     ".",
		Marker:  "combined",
		Policy:  PolicyHalt,
		Logging: Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader: "fs",
			Writer: "fs",
		},
	}
}

const (
	PolicyHalt = "halt"
	PolicySkip = "skip"
)

// LoadFile 从文件路径或原始 YAML 解析 Config（严格拒绝未知字段）。
// 空文档视为空配置。
func LoadFile(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样节点为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if s := strings.TrimSpace(over.Dir); s != "" {
		out.Dir = s
	}
	if s := strings.TrimSpace(over.Marker); s != "" {
		out.Marker = s
	}
	if s := strings.TrimSpace(over.Policy); s != "" {
		out.Policy = strings.ToLower(s)
	}
	// Rehydrate 的 false 具有语义，需要显式可覆盖：nil 表示未覆盖。
	if over.Rehydrate != nil {
		v := *over.Rehydrate
		out.Rehydrate = &v
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = strings.ToLower(s)
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}
	if s := strings.TrimSpace(over.Metrics.Textfile); s != "" {
		out.Metrics.Textfile = s
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if over.Options.Reader.Kind != 0 {
		out.Options.Reader = over.Options.Reader
	}
	if over.Options.Writer.Kind != 0 {
		out.Options.Writer = over.Options.Writer
	}
	return out
}

// EnvPrefix 为本工具识别的环境变量前缀。
const EnvPrefix = "HPCEXP_"

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：DIR, MARKER, POLICY, REHYDRATE, LOG_LEVEL, LOG_DIR, METRICS_TEXTFILE,
// COMPONENTS_READER, COMPONENTS_WRITER。其余键忽略。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		switch key {
		case "DIR":
			over.Dir = val
		case "MARKER":
			over.Marker = val
		case "POLICY":
			over.Policy = val
		case "REHYDRATE":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return over, fmt.Errorf("%sREHYDRATE: %w", EnvPrefix, err)
			}
			over.Rehydrate = &b
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "METRICS_TEXTFILE":
			over.Metrics.Textfile = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		}
	}
	return over, nil
}

// Marshal 以 YAML 编码配置（用于 init-config 与诊断输出）。
func Marshal(c Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
