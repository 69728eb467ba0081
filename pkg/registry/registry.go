package registry

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"hpcexp/pkg/contract"
	rfs "hpcexp/plugins/reader/filesystem"
	wfs "hpcexp/plugins/writer/filesystem"
)

// strictDecode: 以 KnownFields 严格解码 Options 节点，拒绝未知字段。
// 节点为空时保持零值（默认选项）。
func strictDecode(node *yaml.Node, v any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	b, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NewReader 工厂签名：接收原样 Options 节点。
type NewReader func(node *yaml.Node) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 Options 节点与默认输出根目录。
type NewWriter func(node *yaml.Node, root string) (contract.Store, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 目录扫描 Reader（非递归、字典序）
	"fs": func(node *yaml.Node) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer/Appender（整体写出可原子替换；合并结果追加写）
	"fs": func(node *yaml.Node, root string) (contract.Store, error) {
		var opts wfs.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		if opts.OutputDir == "" {
			opts.OutputDir = root
		}
		return wfs.New(&opts)
	},
}
