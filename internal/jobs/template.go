package jobs

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"hpcexp/pkg/contract"
)

//go:embed templates/*.tmpl
var builtin embed.FS

const (
	SlurmTemplate       = "job.slurm.tmpl"
	SeedWrapperTemplate = "seed-wrapper.sh.tmpl"
)

var funcs = template.FuncMap{
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
}

// Template 包装一个作业模板。
type Template struct {
	t *template.Template
}

// LoadTemplate 加载模板：path 为空时使用内置的 name，否则读取该文件。
// 缺失字段按错误处理。
func LoadTemplate(name, path string) (*Template, error) {
	var (
		src []byte
		err error
	)
	if strings.TrimSpace(path) == "" {
		src, err = builtin.ReadFile("templates/" + name)
	} else {
		src, err = os.ReadFile(path)
		name = filepath.Base(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", name, err)
	}
	t, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Template{t: t}, nil
}

// Render 将数据渲染为字节。
func (t *Template) Render(data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Template) writeTo(ctx context.Context, w contract.Writer, id contract.ArtifactID, data any) error {
	b, err := t.Render(data)
	if err != nil {
		return fmt.Errorf("render %s: %w", id, err)
	}
	if err := w.Write(ctx, id, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}
