package config

import "gopkg.in/yaml.v3"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 合并当前目录，halt 策略，不做 rehydrate；
// - 组件名采用仓库内置实现；
// - 选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	off := false
	cfg := Config{
		Dir:        d.Dir,
		Marker:     d.Marker,
		Policy:     d.Policy,
		Rehydrate:  &off,
		Logging:    d.Logging,
		Metrics:    Metrics{Textfile: ""},
		Components: d.Components,
	}
	cfg.Options.Reader = mustNode(`
buf_size: 65536
pattern: "*.csv"
exclude_substrings: []
`)
	// output_dir 为空时跟随 dir
	cfg.Options.Writer = mustNode(`
output_dir: ""
atomic: true
buf_size: 65536
`)
	return cfg
}

func mustNode(src string) yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		panic(err)
	}
	return *doc.Content[0]
}
