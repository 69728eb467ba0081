package combine

import (
	"fmt"

	"hpcexp/pkg/contract"
)

// State: 单次调用内的去重/对照状态，按配置键隔离。
// 每次运行新建并显式传递；不持久化，不跨调用共享。
type State struct {
	keys map[Key]*keyState
}

type keyState struct {
	control    string
	hasControl bool
	seeds      map[string]struct{}
}

// NewState 创建空状态。
func NewState() *State {
	return &State{keys: make(map[Key]*keyState)}
}

func (s *State) get(k Key) *keyState {
	ks, ok := s.keys[k]
	if !ok {
		ks = &keyState{seeds: make(map[string]struct{})}
		s.keys[k] = ks
	}
	return ks
}

// ObserveControl 记录或校验键 k 的对照值：首次记录，之后必须完全相等。
func (s *State) ObserveControl(k Key, value string) error {
	ks := s.get(k)
	if !ks.hasControl {
		ks.control = value
		ks.hasControl = true
		return nil
	}
	if ks.control != value {
		return fmt.Errorf("%w: key %s has %q, got %q", contract.ErrControlMismatch, k, ks.control, value)
	}
	return nil
}

// AcceptSeed 记录 seed；若该键下已见过则返回 ErrDuplicateSeed。
func (s *State) AcceptSeed(k Key, seed string) error {
	ks := s.get(k)
	if _, dup := ks.seeds[seed]; dup {
		return fmt.Errorf("%w: key %s seed %s", contract.ErrDuplicateSeed, k, seed)
	}
	ks.seeds[seed] = struct{}{}
	return nil
}

// forgetSeeds 撤回未写出的 seed。
func (s *State) forgetSeeds(k Key, seeds []string) {
	ks, ok := s.keys[k]
	if !ok {
		return
	}
	for _, seed := range seeds {
		delete(ks.seeds, seed)
	}
}

// Control 返回键 k 已记录的对照值。
func (s *State) Control(k Key) (string, bool) {
	ks, ok := s.keys[k]
	if !ok || !ks.hasControl {
		return "", false
	}
	return ks.control, true
}

// Seen 报告 seed 是否已在键 k 下出现。
func (s *State) Seen(k Key, seed string) bool {
	ks, ok := s.keys[k]
	if !ok {
		return false
	}
	_, seen := ks.seeds[seed]
	return seen
}

// SeedCount 返回键 k 下已接受的 seed 数。
func (s *State) SeedCount(k Key) int {
	if ks, ok := s.keys[k]; ok {
		return len(ks.seeds)
	}
	return 0
}

// Keys 返回已登记的配置键数。
func (s *State) Keys() int { return len(s.keys) }
