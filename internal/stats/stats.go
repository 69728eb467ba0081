// Package stats 对合并文件中的数值列做描述统计（结果分析用）。
package stats

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrTooFewValues: 样本数不足以计算统计量。
var ErrTooFewValues = errors.New("too few values")

// Summary 为单列的描述统计。
// Std/Skew/Kurtosis 均为总体（有偏）估计；Kurtosis 为超额峰度。
type Summary struct {
	N        int
	Mean     float64
	Min      float64
	Max      float64
	Range    float64
	Std      float64
	Skew     float64
	Kurtosis float64
	Q1       float64
	Q3       float64

	LowerOutliers int
	UpperOutliers int
}

// Outliers 返回上下围栏外的总数。
func (s Summary) Outliers() int { return s.LowerOutliers + s.UpperOutliers }

// Describe 计算 x 的描述统计。x 不被修改。
func Describe(x []float64) (Summary, error) {
	if len(x) == 0 {
		return Summary{}, fmt.Errorf("describe: %w", ErrTooFewValues)
	}
	s := Summary{
		N:    len(x),
		Mean: stat.Mean(x, nil),
		Min:  floats.Min(x),
		Max:  floats.Max(x),
		Std:  stat.PopStdDev(x, nil),
	}
	s.Range = s.Max - s.Min

	m2 := stat.Moment(2, x, nil)
	if m2 > 0 {
		s.Skew = stat.Moment(3, x, nil) / math.Pow(m2, 1.5)
		s.Kurtosis = stat.Moment(4, x, nil)/(m2*m2) - 3
	} else {
		s.Skew, s.Kurtosis = math.NaN(), math.NaN()
	}

	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	s.Q1 = quantile(0.25, sorted)
	s.Q3 = quantile(0.75, sorted)
	iqr := s.Q3 - s.Q1
	lower, upper := s.Q1-1.5*iqr, s.Q3+1.5*iqr
	for _, v := range x {
		switch {
		case v < lower:
			s.LowerOutliers++
		case v > upper:
			s.UpperOutliers++
		}
	}
	return s, nil
}

// quantile 线性插值分位数（位置 p*(n-1)），与 numpy 默认一致。
// sorted 必须已升序。
func quantile(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// AccuracyToError 将准确率（小数）换算为错误率 1-acc。
func AccuracyToError(acc []float64) []float64 {
	out := make([]float64, len(acc))
	for i, a := range acc {
		out[i] = 1 - a
	}
	return out
}

// Pearson 返回 x 与 y 的 Pearson 相关系数 r 以及双侧 p 值（H0: r = 0）。
// p 值按自由度 n-2 的 t 分布计算；n == 2 时 p 恒为 1。
func Pearson(x, y []float64) (r, p float64, err error) {
	if len(x) != len(y) {
		return 0, 0, fmt.Errorf("pearson: length mismatch %d != %d", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, 0, fmt.Errorf("pearson: %w", ErrTooFewValues)
	}
	r = math.Max(-1, math.Min(1, stat.Correlation(x, y, nil)))
	return r, pearsonP(r, len(x)), nil
}

func pearsonP(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if math.Abs(r) == 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return math.Min(1, 2*dist.Survival(math.Abs(t)))
}

// Fprint 以对齐的键值形式输出统计结果。
func (s Summary) Fprint(w io.Writer, column string) error {
	_, err := fmt.Fprintf(w,
		"column    %s\nn         %d\nmean      %.6g\nmin       %.6g\nmax       %.6g\nrange     %.6g\nstd       %.6g\nskew      %.6g\nkurtosis  %.6g\nq1        %.6g\nq3        %.6g\noutliers  %d (lower %d, upper %d)\n",
		column, s.N, s.Mean, s.Min, s.Max, s.Range, s.Std, s.Skew, s.Kurtosis, s.Q1, s.Q3,
		s.Outliers(), s.LowerOutliers, s.UpperOutliers)
	return err
}
