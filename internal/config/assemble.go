package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"hpcexp/internal/pipeline"
	"hpcexp/pkg/registry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("config: %s failed %q (value %v)", strings.ToLower(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	if name := effName(cfg.Components.Reader, Defaults().Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, Defaults().Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传原样节点。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](&cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: reader options: %w", err)
	}
	// 合并产物默认写回结果目录
	s, err := registry.Writer[wn](&cfg.Options.Writer, cfg.Dir)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: writer options: %w", err)
	}

	set := pipeline.Settings{
		Dir:       cfg.Dir,
		OutputDir: OutputDir(cfg),
		Marker:    cfg.Marker,
		Policy:    pipeline.Policy(cfg.Policy),
		Rehydrate: cfg.RehydrateEnabled(),
	}
	return pipeline.Components{Reader: r, Store: s}, set, nil
}

// OutputDir 返回 fs writer 生效的输出目录（未配置时跟随 dir）。
func OutputDir(cfg Config) string {
	var wopts struct {
		OutputDir string `yaml:"output_dir"`
	}
	if cfg.Options.Writer.Kind != 0 {
		_ = cfg.Options.Writer.Decode(&wopts)
	}
	if dir := strings.TrimSpace(wopts.OutputDir); dir != "" {
		return dir
	}
	return cfg.Dir
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
