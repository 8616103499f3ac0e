package models

// 会话消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage 会话历史中的一条消息
type ConversationMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// CompanionRequest 对话请求
type CompanionRequest struct {
	ConversationID string                 `json:"conversation_id,omitempty"`
	Text           string                 `json:"text"`
	HealthContext  map[string]interface{} `json:"health_context,omitempty"` // 戒指实时指标（hr、spo2、sleep_hours 等）
	UserName       string                 `json:"user_name,omitempty"`
}

// CompanionAction 模型回复中解析出的动作指令
// 如 [ACTION:SOS_ALERT]、[ACTION:LOG_SYMPTOM:headache]
type CompanionAction struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// CompanionReply 对话回复
type CompanionReply struct {
	ReplyText      string            `json:"reply_text"`
	ConversationID string            `json:"conversation_id"`
	Actions        []CompanionAction `json:"actions,omitempty"`
	Audio          []byte            `json:"audio,omitempty"` // MP3，JSON 中 base64 编码
	AudioMIME      string            `json:"audio_mime,omitempty"`
	Model          string            `json:"model,omitempty"`
}
