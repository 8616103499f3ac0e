package companion

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BharathRai/miraii-backend/internal/metrics"
	"github.com/BharathRai/miraii-backend/internal/models"

	"go.uber.org/zap"
)

// Replier 对话回复契约（文本与语音共用，便于替换部署形态）
type Replier interface {
	TextReply(ctx context.Context, req *models.CompanionRequest) (*models.CompanionReply, error)
	VoiceReply(ctx context.Context, req *models.CompanionRequest) (*models.CompanionReply, error)
}

// actionTagPattern 模型回复中的动作标签，如 [ACTION:SOS_ALERT]、[ACTION:LOG_SYMPTOM:headache]
var actionTagPattern = regexp.MustCompile(`\[ACTION:([A-Z_]+)(?::([^\]]+))?\]`)

// Capabilities 服务能力报告，供根路径健康检查返回
type Capabilities struct {
	LLM bool `json:"llm"`
	TTS bool `json:"tts"`
}

// Engine 对话引擎
// 链路：会话历史 → 系统提示词（人设 + 健康上下文）→ 模型调用 → 动作标签解析 → 历史回写
type Engine struct {
	memory *Memory
	llm    *LLMClient
	tts    *TTSClient
	model  string
	logger *zap.Logger
}

// NewEngine 创建对话引擎
func NewEngine(memory *Memory, llm *LLMClient, tts *TTSClient, model string, logger *zap.Logger) *Engine {
	return &Engine{
		memory: memory,
		llm:    llm,
		tts:    tts,
		model:  model,
		logger: logger,
	}
}

// TextReply 生成文本回复
func (e *Engine) TextReply(ctx context.Context, req *models.CompanionRequest) (*models.CompanionReply, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		var err error
		conversationID, err = newConversationID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate conversation id: %w", err)
		}
	}

	// 1. 加载会话历史
	history, err := e.memory.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	// 2. 组装消息：系统提示词 + 历史 + 本轮输入
	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{
		Role:    "system",
		Content: buildSystemPrompt(req.UserName, req.HealthContext),
	})
	for _, h := range history {
		messages = append(messages, ChatMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, ChatMessage{Role: models.RoleUser, Content: req.Text})

	// 3. 调用模型
	rawReply, err := e.llm.Complete(ctx, messages)
	if err != nil {
		metrics.CompanionFailures.WithLabelValues("model").Inc()
		return nil, err
	}

	// 4. 解析并剥离动作标签
	// 剥离后没有可见文本时：带动作补一句确认，否则模型空回复按不可用处理
	replyText, actions := parseActions(rawReply)
	if replyText == "" {
		if len(actions) == 0 {
			metrics.CompanionFailures.WithLabelValues("model").Inc()
			return nil, fmt.Errorf("%w: model returned an empty reply", ErrModelUnavailable)
		}
		replyText = "Okay, I'm taking care of that right now."
	}

	// 5. 回写会话历史（历史失败不影响本次回复，只是下一轮少一条上下文）
	now := time.Now().Unix()
	if err := e.memory.AppendMessage(ctx, conversationID, &models.ConversationMessage{
		Role: models.RoleUser, Content: req.Text, Timestamp: now,
	}); err != nil {
		e.logger.Warn("Failed to persist user message",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
	if err := e.memory.AppendMessage(ctx, conversationID, &models.ConversationMessage{
		Role: models.RoleAssistant, Content: replyText, Timestamp: now,
	}); err != nil {
		e.logger.Warn("Failed to persist assistant message",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	metrics.CompanionReplies.WithLabelValues("text").Inc()

	return &models.CompanionReply{
		ReplyText:      replyText,
		ConversationID: conversationID,
		Actions:        actions,
		Model:          e.model,
	}, nil
}

// VoiceReply 生成文本回复并合成语音
// 合成失败时整个请求失败，不退化为纯文本（调用方期望音频时必须拿到音频或错误）
func (e *Engine) VoiceReply(ctx context.Context, req *models.CompanionRequest) (*models.CompanionReply, error) {
	reply, err := e.TextReply(ctx, req)
	if err != nil {
		return nil, err
	}

	audio, err := e.tts.Synthesize(ctx, reply.ReplyText)
	if err != nil {
		metrics.CompanionFailures.WithLabelValues("synthesis").Inc()
		return nil, err
	}

	reply.Audio = audio
	reply.AudioMIME = "audio/mpeg"
	metrics.CompanionReplies.WithLabelValues("voice").Inc()

	return reply, nil
}

// newConversationID 生成 conv_ 前缀的随机会话 ID
func newConversationID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "conv_" + hex.EncodeToString(buf), nil
}

// buildSystemPrompt 构建系统提示词：陪伴人设 + 实时健康上下文 + 动作标签协议
func buildSystemPrompt(userName string, healthContext map[string]interface{}) string {
	var b strings.Builder

	b.WriteString("You are ELAI, a warm and caring AI companion living inside the Miraii smart ring. ")
	b.WriteString("You talk with elderly users like a kind, attentive friend. ")
	b.WriteString("Keep replies short, conversational, and reassuring. Never give medical diagnoses; ")
	b.WriteString("for concerning symptoms, gently suggest contacting a doctor or family member.\n")

	if userName != "" {
		fmt.Fprintf(&b, "\nThe user's name is %s.\n", userName)
	}

	if len(healthContext) > 0 {
		b.WriteString("\nCurrent readings from the user's ring:\n")
		keys := make([]string, 0, len(healthContext))
		for k := range healthContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, healthContext[k])
		}
		b.WriteString("Weave these into the conversation naturally when relevant. Do not recite them all.\n")
	}

	b.WriteString("\nYou may attach action tags to your reply; they are machine-read and stripped before the user sees it. ")
	b.WriteString("If the user needs urgent help, include [ACTION:SOS_ALERT]. ")
	b.WriteString("To guide a calming breath, include [ACTION:BREATHING_EXERCISE]. ")
	b.WriteString("To log a symptom the user mentions, include [ACTION:LOG_SYMPTOM:<symptom>]. ")
	b.WriteString("To follow up with the user later, include [ACTION:CHECK_IN_LATER]. ")
	b.WriteString("To flag something for the caregiver, include [ACTION:SHARE_WITH_CAREGIVER].")

	return b.String()
}

// parseActions 从模型回复中提取动作标签并返回剥离后的文本
func parseActions(raw string) (string, []models.CompanionAction) {
	matches := actionTagPattern.FindAllStringSubmatch(raw, -1)

	var actions []models.CompanionAction
	for _, m := range matches {
		actions = append(actions, models.CompanionAction{
			Type: m[1],
			Data: m[2],
		})
	}

	text := actionTagPattern.ReplaceAllString(raw, "")
	text = strings.Join(strings.Fields(text), " ")

	return text, actions
}
