package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"hpcexp/pkg/contract"
)

// 可选取值；与训练脚本支持的集合一致。
var (
	Clusters   = []string{"idun"}
	GPUs       = []string{"A100", "V100"}
	Containers = []string{"ngc2312"}
	Frameworks = []string{"TensorFlow", "PyTorch"}
	Optimizers = []string{"SGD", "Adam", "AdamW"}
	Models     = []string{
		"DenseNet_k12d40", "DenseNet_k12d100", "DenseNet_k24d100",
		"DenseNet_bc_k12d100", "DenseNet_bc_k24d250", "DenseNet_bc_k40d190",
		"DenseNet121", "DenseNet169", "DenseNet201", "DenseNet264",
		"ResNet20", "ResNet32", "ResNet44", "ResNet56", "ResNet110", "ResNet1202",
		"ResNet18", "ResNet34", "ResNet50", "ResNet101", "ResNet152",
		"ViTS8", "ViTB8", "ViTTiny16", "ViTS16", "ViTB16", "ViTL16", "ViTH16",
	}
	Datasets = []string{
		"cats_vs_dogs", "cifar10", "cifar10_224", "cifar100", "cifar100_224",
		"imagenette", "oxford_flowers102", "oxford_iiit_pet", "uc_merced",
	}
)

// containerFiles: (框架, 容器简称) → 容器镜像文件。
var containerFiles = map[[2]string]string{
	{"PyTorch", "ngc2312"}:    "pytorch_23.12-py3-1.1.1.sif",
	{"TensorFlow", "ngc2312"}: "tensorflow_23.12-tf2-py3-1.0.1.sif",
}

// SlurmSpec 描述一组 SLURM 作业文件。字符串字段的 tag 为可选集合名（见 newValidator）。
type SlurmSpec struct {
	NumJobFiles    int     `validate:"min=1"`
	HPCCluster     string  `validate:"cluster"`
	GPU            string  `validate:"gpu"`
	ContainerShort string  `validate:"container"`
	Framework      string  `validate:"framework"`
	ModelName      string  `validate:"model"`
	DatasetName    string  `validate:"dataset"`
	Optimizer      string  `validate:"optimizer"`
	Epochs         int     `validate:"min=0"`
	BatchSize      int     `validate:"min=1"`
	LearningRate   float64 `validate:"gt=0"`
	LRScheduler    bool
	LRWarmup       bool
}

// DefaultSlurmSpec 返回各项默认值。
func DefaultSlurmSpec() SlurmSpec {
	return SlurmSpec{
		NumJobFiles:    10,
		HPCCluster:     "idun",
		GPU:            "A100",
		ContainerShort: "ngc2312",
		Framework:      "TensorFlow",
		ModelName:      "DenseNet121",
		DatasetName:    "cifar10",
		Optimizer:      "SGD",
		BatchSize:      128,
		LearningRate:   0.001,
	}
}

// ErrInvalidSpec: 生成参数不在允许范围内。
var ErrInvalidSpec = errors.New("invalid job spec")

// choiceTags 把自定义校验标签映射到可选集合。
var choiceTags = map[string][]string{
	"cluster":   Clusters,
	"gpu":       GPUs,
	"container": Containers,
	"framework": Frameworks,
	"optimizer": Optimizers,
	"model":     Models,
	"dataset":   Datasets,
}

var validate = mustValidator(newValidator(choiceTags))

func newValidator(choices map[string][]string) (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, set := range choices {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return contains(set, fl.Field().String())
		}); err != nil {
			return nil, fmt.Errorf("register %q: %w", tag, err)
		}
	}
	return v, nil
}

// mustValidator 用于包级初始化：标签注册失败即 panic，不允许静默丢掉取值检查。
func mustValidator(v *validator.Validate, err error) *validator.Validate {
	if err != nil {
		panic(err)
	}
	return v
}

// Validate 校验取值范围与可选集合。
func (s SlurmSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fieldError(err)
	}
	_, err := s.ContainerFilename()
	return err
}

func fieldError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidSpec, ve[0].Field(), ve[0].Tag(), ve[0].Value())
	}
	return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
}

// ContainerFilename 返回框架与容器简称对应的镜像文件名。
func (s SlurmSpec) ContainerFilename() (string, error) {
	f, ok := containerFiles[[2]string{s.Framework, s.ContainerShort}]
	if !ok {
		return "", fmt.Errorf("%w: no container image for %s/%s", ErrInvalidSpec, s.Framework, s.ContainerShort)
	}
	return f, nil
}

// Banner 返回全部作业写出后的完成提示。
func (s SlurmSpec) Banner() string {
	return fmt.Sprintf("%s-%s-%s-%s-%s-%s Done!",
		s.ModelName,
		strings.ToLower(s.DatasetName),
		strings.ToLower(s.HPCCluster),
		strings.ToUpper(s.GPU),
		s.Framework,
		strings.ToLower(s.ContainerShort))
}

// SlurmJob 是单个作业文件的模板数据。
type SlurmJob struct {
	SlurmSpec
	RunNumber         int
	ContainerFilename string
	// LRScheduler/LRWarmup 以 "0"/"1" 传给训练脚本
	LRScheduler string
	LRWarmup    string
}

// Jobs 展开为每个运行的模板数据。
func (s SlurmSpec) Jobs() ([]SlurmJob, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	container, _ := s.ContainerFilename()
	out := make([]SlurmJob, s.NumJobFiles)
	for run := range out {
		out[run] = SlurmJob{
			SlurmSpec:         s,
			RunNumber:         run,
			ContainerFilename: container,
			LRScheduler:       flag01(s.LRScheduler),
			LRWarmup:          flag01(s.LRWarmup),
		}
	}
	return out, nil
}

// JobFileName 返回运行对应的作业文件名。
func JobFileName(run int) contract.ArtifactID {
	return contract.ArtifactID("job_" + strconv.Itoa(run) + ".slurm")
}

// WriteSlurmJobs 渲染并写出 job_<run>.slurm。
func WriteSlurmJobs(ctx context.Context, spec SlurmSpec, tmpl *Template, w contract.Writer) ([]contract.ArtifactID, error) {
	jobs, err := spec.Jobs()
	if err != nil {
		return nil, err
	}
	ids := make([]contract.ArtifactID, 0, len(jobs))
	for _, j := range jobs {
		id := JobFileName(j.RunNumber)
		if err := tmpl.writeTo(ctx, w, id, j); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func flag01(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
