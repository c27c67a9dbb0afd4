package services

import (
	"fmt"
	"sync"
)

// 请求生命周期状态
const (
	StateReceived       = "received"
	StateRetrieving     = "retrieving"
	StateWebSearching   = "web_searching"
	StatePromptBuilding = "prompt_building"
	StateGenerating     = "generating"
	StatePersisting     = "persisting"
	StateCompleted      = "completed"
	StateFailed         = "failed"
)

// 状态转换规则。转换严格向前，任何状态都可进入failed终态。
// 检索与网络搜索并行执行，web_searching是可选的中间状态。
var requestTransitions = map[string][]string{
	StateReceived:       {StateRetrieving},
	StateRetrieving:     {StateWebSearching, StatePromptBuilding},
	StateWebSearching:   {StatePromptBuilding},
	StatePromptBuilding: {StateGenerating},
	StateGenerating:     {StatePersisting, StateCompleted},
	StatePersisting:     {StateCompleted},
}

// RequestStateMachine 单个请求的状态跟踪器
type RequestStateMachine struct {
	mu      sync.Mutex
	current string
}

// NewRequestStateMachine 创建状态机，初始状态为received
func NewRequestStateMachine() *RequestStateMachine {
	return &RequestStateMachine{current: StateReceived}
}

// Current 返回当前状态
func (sm *RequestStateMachine) Current() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// CanTransition 检查是否可以进行状态转换
func (sm *RequestStateMachine) CanTransition(from, to string) bool {
	if to == StateFailed {
		return from != StateCompleted && from != StateFailed
	}
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition 执行状态转换，非法转换报错
func (sm *RequestStateMachine) Transition(to string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.CanTransition(sm.current, to) {
		return fmt.Errorf("invalid transition from %s to %s", sm.current, to)
	}
	sm.current = to
	return nil
}

// Fail 将请求置为失败终态
func (sm *RequestStateMachine) Fail() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.current != StateCompleted {
		sm.current = StateFailed
	}
}

// Terminal 是否已到终态
func (sm *RequestStateMachine) Terminal() bool {
	state := sm.Current()
	return state == StateCompleted || state == StateFailed
}
