package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hpcexp/internal/combine"
	"hpcexp/pkg/contract"
)

// ReadColumns 从合并文件读取若干列的数值。
// 列名取自表头行；对照行跳过；数据行中对应字段为空的行整行跳过（各列保持等长）。
func ReadColumns(r io.Reader, names ...string) ([][]float64, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no column requested")
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var idx []int
	out := make([][]float64, len(names))
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := contract.Row(rec)
		kind, err := combine.Classify(row)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		switch kind {
		case combine.KindHeader:
			if idx == nil {
				if idx, err = columnIndexes(row, names); err != nil {
					return nil, err
				}
			}
		case combine.KindData:
			if idx == nil {
				return nil, fmt.Errorf("record %d: %w", n, contract.ErrHeaderMissing)
			}
			vals, ok, err := parseFields(row, idx)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", n, err)
			}
			if !ok {
				continue
			}
			for i, v := range vals {
				out[i] = append(out[i], v)
			}
		}
	}
	if idx == nil {
		return nil, contract.ErrHeaderMissing
	}
	return out, nil
}

// ReadColumn 读取单列。
func ReadColumn(r io.Reader, name string) ([]float64, error) {
	cols, err := ReadColumns(r, name)
	if err != nil {
		return nil, err
	}
	return cols[0], nil
}

func columnIndexes(header contract.Row, names []string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(h) == name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("column %q not found in header", name)
		}
	}
	return idx, nil
}

func parseFields(row contract.Row, idx []int) ([]float64, bool, error) {
	vals := make([]float64, len(idx))
	for i, j := range idx {
		if j >= len(row) || strings.TrimSpace(row[j]) == "" {
			return nil, false, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
		if err != nil {
			return nil, false, fmt.Errorf("%w: field %d: %v", contract.ErrMalformedRow, j, err)
		}
		vals[i] = v
	}
	return vals, true, nil
}
