package combine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"hpcexp/pkg/contract"
)

// FileResult 汇总单个结果文件的处理情况。
type FileResult struct {
	Key    Key
	Run    string
	Output contract.ArtifactID
	// Created: 本文件首次写出了合并文件（含表头）。
	Created  bool
	Controls int
	Accepted int
}

// Processor 将结果文件逐行折叠进各自配置键的合并文件。
// 所有跨文件状态都在 State 中；Processor 本身无并发。
type Processor struct {
	state  *State
	out    contract.Appender
	marker string
}

// NewProcessor 创建处理器；marker 为空时使用 DefaultMarker。
func NewProcessor(state *State, out contract.Appender, marker string) *Processor {
	if state == nil {
		state = NewState()
	}
	if marker == "" {
		marker = DefaultMarker
	}
	return &Processor{state: state, out: out, marker: marker}
}

// State 返回处理器使用的状态。
func (p *Processor) State() *State { return p.state }

// ProcessFile 单遍处理一个结果文件：
//   - 表头行只捕获一次，仅在合并文件尚不存在时作为首行写出；
//   - 对照行校验该键的对照值，不一致返回 ErrControlMismatch；
//   - 数据行按 seed 去重，重复返回 ErrDuplicateSeed。
//
// 本文件接受的行在读完整个文件后才写出，对照值不一致时合并文件不被改动，
// 本文件登记的 seed 也从状态中撤回。重复 seed、坏行与缺表头时，
// 出错前已接受的行照常写出，不回滚。
func (p *Processor) ProcessFile(ctx context.Context, id contract.FileID, r io.Reader) (res FileResult, err error) {
	key, run, err := ParseFileName(id.Base())
	if err != nil {
		return res, err
	}
	res = FileResult{Key: key, Run: run, Output: key.CombinedName(p.marker)}
	exists, err := p.out.Exists(ctx, res.Output)
	if err != nil {
		return res, err
	}

	b := &batch{needHeader: !exists}
	if err := p.scan(ctx, id, key, r, b, &res); err != nil {
		if !keepsPartial(err) {
			p.state.forgetSeeds(key, b.seeds())
			return res, err
		}
		if cerr := p.commit(ctx, res.Output, b, &res); cerr != nil {
			return res, errors.Join(err, cerr)
		}
		return res, err
	}
	return res, p.commit(ctx, res.Output, b, &res)
}

// keepsPartial 报告出错时是否仍写出已接受的行。
func keepsPartial(err error) bool {
	return errors.Is(err, contract.ErrDuplicateSeed) ||
		errors.Is(err, contract.ErrMalformedRow) ||
		errors.Is(err, contract.ErrHeaderMissing)
}

// batch 暂存单个文件已接受、尚未写出的行。
type batch struct {
	needHeader bool
	header     contract.Row
	rows       []contract.Row
}

func (b *batch) seeds() []string {
	out := make([]string, 0, len(b.rows))
	for _, row := range b.rows {
		out = append(out, Seed(row))
	}
	return out
}

func (p *Processor) scan(ctx context.Context, id contract.FileID, key Key, r io.Reader, b *batch, res *FileResult) error {
	cr := newCSVReader(r)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, rerr := cr.Read()
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("%s: %w", id, rerr)
		}
		row := contract.Row(rec)
		kind, cerr := Classify(row)
		if cerr != nil {
			return fmt.Errorf("%s record %d: %w", id, n, cerr)
		}
		switch kind {
		case KindHeader:
			if b.header == nil {
				b.header = row.Clone()
			}
		case KindControl:
			if err := p.state.ObserveControl(key, row.Last()); err != nil {
				return fmt.Errorf("%s record %d: %w", id, n, err)
			}
			res.Controls++
		case KindData:
			if b.needHeader && b.header == nil {
				return fmt.Errorf("%s record %d: %w", id, n, contract.ErrHeaderMissing)
			}
			if err := p.state.AcceptSeed(key, Seed(row)); err != nil {
				return fmt.Errorf("%s record %d: %w", id, n, err)
			}
			b.rows = append(b.rows, row.Clone())
		}
	}
}

// commit 写出暂存的行；新合并文件先写表头。无数据行的新键仍写出表头，保持"首次遇到即创建"。
func (p *Processor) commit(ctx context.Context, out contract.ArtifactID, b *batch, res *FileResult) (err error) {
	if len(b.rows) == 0 && !(b.needHeader && b.header != nil) {
		return nil
	}
	s := &sink{ctx: ctx, out: p.out, id: out}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if b.needHeader {
		if err := s.write(b.header); err != nil {
			return err
		}
		b.needHeader = false
		res.Created = true
	}
	for _, row := range b.rows {
		if err := s.write(row); err != nil {
			return err
		}
		res.Accepted++
	}
	return nil
}

// Rehydrate 读取一个已有合并文件，把其中的 seed（以及可能存在的对照值）登记进状态。
// 返回登记的 seed 数。
func (p *Processor) Rehydrate(ctx context.Context, id contract.FileID, r io.Reader) (int, error) {
	key, err := ParseCombinedName(id.Base(), p.marker)
	if err != nil {
		return 0, err
	}
	cr := newCSVReader(r)
	seeds := 0
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return seeds, err
		}
		rec, rerr := cr.Read()
		if rerr == io.EOF {
			return seeds, nil
		}
		if rerr != nil {
			return seeds, fmt.Errorf("%s: %w", id, rerr)
		}
		row := contract.Row(rec)
		kind, cerr := Classify(row)
		if cerr != nil {
			return seeds, fmt.Errorf("%s record %d: %w", id, n, cerr)
		}
		switch kind {
		case KindControl:
			if err := p.state.ObserveControl(key, row.Last()); err != nil {
				return seeds, fmt.Errorf("%s record %d: %w", id, n, err)
			}
		case KindData:
			if err := p.state.AcceptSeed(key, Seed(row)); err != nil {
				return seeds, fmt.Errorf("%s record %d: %w", id, n, err)
			}
			seeds++
		}
	}
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// sink 延迟打开合并文件：只有真正需要写出时才创建/追加。
type sink struct {
	ctx context.Context
	out contract.Appender
	id  contract.ArtifactID
	wc  io.WriteCloser
	cw  *csv.Writer
}

// write 写出一行并立即刷新。
func (s *sink) write(row contract.Row) error {
	if s.cw == nil {
		wc, err := s.out.Append(s.ctx, s.id)
		if err != nil {
			return err
		}
		s.wc = wc
		s.cw = csv.NewWriter(wc)
	}
	if err := s.cw.Write(row); err != nil {
		return err
	}
	s.cw.Flush()
	return s.cw.Error()
}

func (s *sink) close() error {
	if s.wc == nil {
		return nil
	}
	s.cw.Flush()
	return errors.Join(s.cw.Error(), s.wc.Close())
}
