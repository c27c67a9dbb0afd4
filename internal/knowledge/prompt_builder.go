package knowledge

import (
	"fmt"
	"strings"

	"github.com/aihub/search-go/internal/models"
)

const (
	defaultPromptBudget = 8000
	defaultHistoryTurns = 5
)

// PromptBuilder 组装生成提示词。提示词包含接地指令、文档与网络来源、
// 有界的历史对话和当前问题，总长度受字符预算约束。
type PromptBuilder struct {
	budget       int
	historyTurns int
}

// NewPromptBuilder 创建提示词组装器
func NewPromptBuilder(budget, historyTurns int) *PromptBuilder {
	if budget <= 0 {
		budget = defaultPromptBudget
	}
	if historyTurns <= 0 {
		historyTurns = defaultHistoryTurns
	}
	return &PromptBuilder{
		budget:       budget,
		historyTurns: historyTurns,
	}
}

// Build 构建提示词。超出预算时先丢弃排名最低的来源，再丢弃最旧的历史，
// 当前问题永不丢弃。
func (b *PromptBuilder) Build(query string, sources []Source, history []models.ConversationTurn) string {
	// 历史先按轮数截断
	limit := b.historyTurns * 2
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	prompt := b.compose(query, sources, history)
	for len([]rune(prompt)) > b.budget && len(sources) > 0 {
		sources = sources[:len(sources)-1]
		prompt = b.compose(query, sources, history)
	}
	for len([]rune(prompt)) > b.budget && len(history) > 0 {
		history = history[1:]
		prompt = b.compose(query, sources, history)
	}
	return prompt
}

func (b *PromptBuilder) compose(query string, sources []Source, history []models.ConversationTurn) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful AI assistant that answers questions based on provided context.\n\n")

	var docIndex, webIndex int
	var docSection, webSection strings.Builder
	for _, src := range sources {
		switch src.Type {
		case SourceDocument:
			docIndex++
			title := src.Title
			if title == "" {
				title = src.DocumentID
			}
			fmt.Fprintf(&docSection, "[Document %d: %s]\n%s\n\n", docIndex, title, src.Content)
		case SourceWeb:
			webIndex++
			fmt.Fprintf(&webSection, "[Web Source %d: %s]\nURL: %s\n%s\n\n", webIndex, src.Title, src.URL, src.Content)
		}
	}

	if docSection.Len() > 0 {
		sb.WriteString("Context from your uploaded documents:\n\n")
		sb.WriteString(docSection.String())
	}
	if webSection.Len() > 0 {
		sb.WriteString("Additional context from web search:\n\n")
		sb.WriteString(webSection.String())
	}

	if len(history) > 0 {
		sb.WriteString("\nPrevious conversation:\n")
		for _, turn := range history {
			role := "User"
			if turn.Role == models.RoleAssistant {
				role = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, turn.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "User question: %s\n\n", query)

	sb.WriteString(`Instructions:
- Answer the question based on the provided context
- If using information from documents, cite the document name
- If using information from web sources, mention it's from web search and include the source
- If the context doesn't contain enough information, say so
- Be concise but complete
- Distinguish between information from uploaded documents vs. web sources

Answer:`)

	return sb.String()
}
