package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestStateMachine_HappyPath(t *testing.T) {
	sm := NewRequestStateMachine()
	assert.Equal(t, StateReceived, sm.Current())

	require.NoError(t, sm.Transition(StateRetrieving))
	require.NoError(t, sm.Transition(StateWebSearching))
	require.NoError(t, sm.Transition(StatePromptBuilding))
	require.NoError(t, sm.Transition(StateGenerating))
	require.NoError(t, sm.Transition(StatePersisting))
	require.NoError(t, sm.Transition(StateCompleted))

	assert.True(t, sm.Terminal())
}

func TestRequestStateMachine_SkipWebSearch(t *testing.T) {
	sm := NewRequestStateMachine()

	// 不开启网络搜索时跳过web_searching状态
	require.NoError(t, sm.Transition(StateRetrieving))
	require.NoError(t, sm.Transition(StatePromptBuilding))
	require.NoError(t, sm.Transition(StateGenerating))
	require.NoError(t, sm.Transition(StateCompleted))
}

func TestRequestStateMachine_ForwardOnly(t *testing.T) {
	sm := NewRequestStateMachine()
	require.NoError(t, sm.Transition(StateRetrieving))
	require.NoError(t, sm.Transition(StatePromptBuilding))

	// 状态不可回退
	assert.Error(t, sm.Transition(StateRetrieving))
	assert.Error(t, sm.Transition(StateReceived))

	// 不可跳级
	assert.Error(t, sm.Transition(StatePersisting))
	assert.Error(t, sm.Transition(StateCompleted))

	// 失败的转换不改变当前状态
	assert.Equal(t, StatePromptBuilding, sm.Current())
}

func TestRequestStateMachine_FailFromAnyState(t *testing.T) {
	for _, state := range []string{StateRetrieving, StatePromptBuilding, StateGenerating, StatePersisting} {
		sm := NewRequestStateMachine()
		assert.True(t, sm.CanTransition(state, StateFailed))
	}

	sm := NewRequestStateMachine()
	sm.Fail()
	assert.Equal(t, StateFailed, sm.Current())
	assert.True(t, sm.Terminal())
}

func TestRequestStateMachine_CompletedIsFinal(t *testing.T) {
	sm := NewRequestStateMachine()
	require.NoError(t, sm.Transition(StateRetrieving))
	require.NoError(t, sm.Transition(StatePromptBuilding))
	require.NoError(t, sm.Transition(StateGenerating))
	require.NoError(t, sm.Transition(StateCompleted))

	// 完成后不可再失败或转换
	sm.Fail()
	assert.Equal(t, StateCompleted, sm.Current())
	assert.Error(t, sm.Transition(StateRetrieving))
}
