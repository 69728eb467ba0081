package diag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 指标（进程内私有 registry，可按 node_exporter textfile 格式导出）：
// - hpcexp_op_total{comp,stage,result}
// - hpcexp_error_total{comp,code}
// - hpcexp_op_duration_seconds{comp,stage}
// - hpcexp_combine_rows_total{kind}
const metricsNamespace = "hpcexp"

var (
	// Registry 汇集本进程的全部指标。
	Registry = prometheus.NewRegistry()

	opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "op_total",
		Help:      "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "error_total",
		Help:      "Errors by component and classification code.",
	}, []string{"comp", "code"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "op_duration_seconds",
		Help:      "Stage duration in seconds.",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"comp", "stage"})

	rowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "combine",
		Name:      "rows_total",
		Help:      "Rows seen by the combiner by kind.",
	}, []string{"kind"})
)

func init() {
	Registry.MustRegister(opTotal, errorTotal, opDuration, rowsTotal)
}

// IncOp 累加操作计数（result=success|error|skip）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp string, code Code) {
	errorTotal.WithLabelValues(comp, string(code)).Inc()
}

// ObserveDuration 记录阶段耗时。
func ObserveDuration(comp, stage string, d time.Duration) {
	opDuration.WithLabelValues(comp, stage).Observe(d.Seconds())
}

// AddRows 按行类型累加行数。
func AddRows(kind string, n int) {
	if n <= 0 {
		return
	}
	rowsTotal.WithLabelValues(kind).Add(float64(n))
}

// WriteTextfile 以 textfile collector 格式原子写出当前指标；path 为空时不做任何事。
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, Registry)
}
