package config

import "gopkg.in/yaml.v3"

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Dir: 结果文件所在目录（非递归扫描）。
	Dir string `yaml:"dir" validate:"required"`
	// Marker: 合并产物文件名标记；含该子串的 CSV 不作为输入。
	Marker string `yaml:"marker" validate:"required,excludes=-,excludes=/"`
	// Policy: 违例处理策略。halt 遇错即停；skip 记录后继续下一个文件。
	Policy string `yaml:"policy" validate:"oneof=halt skip"`
	// Rehydrate: 运行前是否从已有合并文件恢复 seed/对照值。nil 表示未设置。
	Rehydrate *bool `yaml:"rehydrate,omitempty"`

	Logging Logging `yaml:"logging"`
	Metrics Metrics `yaml:"metrics"`

	// 组件名选择（空则使用默认名）。
	Components Components `yaml:"components"`
	// 各组件 Options 子树，原样 YAML 节点传入工厂。
	Options Options `yaml:"options"`
}

// Logging: 日志等级与落盘目录。
type Logging struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
}

// Metrics: textfile collector 输出路径；空则不写。
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `yaml:"reader"`
	Writer string `yaml:"writer"`
}

// Options: 各组件的原样 Options。
type Options struct {
	Reader yaml.Node `yaml:"reader,omitempty"`
	Writer yaml.Node `yaml:"writer,omitempty"`
}

// RehydrateEnabled 返回生效的 Rehydrate 开关（未设置视为关闭）。
func (c Config) RehydrateEnabled() bool {
	return c.Rehydrate != nil && *c.Rehydrate
}
