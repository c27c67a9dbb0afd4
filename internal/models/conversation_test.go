package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildTurns(n int) []ConversationTurn {
	var turns []ConversationTurn
	for i := 0; i < n; i++ {
		turns = append(turns,
			ConversationTurn{Role: RoleUser, Content: fmt.Sprintf("q%d", i)},
			ConversationTurn{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}
	return turns
}

func TestConversationRecord_LastTurns(t *testing.T) {
	record := &ConversationRecord{Turns: buildTurns(10)}

	// 最近5轮为10条消息，保持时间顺序
	recent := record.LastTurns(5)
	assert.Len(t, recent, 10)
	assert.Equal(t, "q5", recent[0].Content)
	assert.Equal(t, "a9", recent[len(recent)-1].Content)
}

func TestConversationRecord_Summary(t *testing.T) {
	record := &ConversationRecord{ID: "conv-1", Turns: buildTurns(3)}

	summary := record.Summary()
	assert.Equal(t, "conv-1", summary.ID)
	assert.Equal(t, 3, summary.TurnCount)
}

func TestConversationRecord_LastTurns_FewerThanLimit(t *testing.T) {
	record := &ConversationRecord{Turns: buildTurns(2)}
	assert.Len(t, record.LastTurns(5), 4)

	empty := &ConversationRecord{}
	assert.Empty(t, empty.LastTurns(5))
}

func TestConversationRecord_LastTurns_NonPositiveLimit(t *testing.T) {
	record := &ConversationRecord{Turns: buildTurns(3)}

	// 轮数不为正时不返回任何历史
	assert.Empty(t, record.LastTurns(0))
	assert.Empty(t, record.LastTurns(-1))
}
