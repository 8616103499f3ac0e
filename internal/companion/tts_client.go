package companion

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// VoiceSettings ElevenLabs 音色参数
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// TTSRequest ElevenLabs 合成请求
type TTSRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// TTSClient ElevenLabs 语音合成客户端
type TTSClient struct {
	httpClient *resty.Client
	apiKey     string
	voiceID    string
	logger     *zap.Logger
}

// NewTTSClient 创建语音合成客户端
// apiKey 为空时客户端可创建但合成调用返回 ErrSynthesis
func NewTTSClient(apiKey, voiceID string, timeout time.Duration, logger *zap.Logger) *TTSClient {
	client := resty.New().
		SetBaseURL("https://api.elevenlabs.io").
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &TTSClient{
		httpClient: client,
		apiKey:     apiKey,
		voiceID:    voiceID,
		logger:     logger,
	}
}

// SetBaseURL 覆盖 API 地址（测试用）
func (c *TTSClient) SetBaseURL(baseURL string) {
	c.httpClient.SetBaseURL(baseURL)
}

// Synthesize 合成语音，返回 MP3 字节流
func (c *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: TTS API key is not configured", ErrSynthesis)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrSynthesis)
	}

	request := TTSRequest{
		Text:    text,
		ModelID: "eleven_multilingual_v2",
		VoiceSettings: VoiceSettings{
			Stability:       0.45,
			SimilarityBoost: 0.75,
			Style:           0.4,
			UseSpeakerBoost: true,
		},
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("xi-api-key", c.apiKey).
		SetHeader("Accept", "audio/mpeg").
		SetBody(request).
		Post(fmt.Sprintf("/v1/text-to-speech/%s", c.voiceID))

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	if resp.IsError() {
		c.logger.Error("TTS API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("%w: status=%d", ErrSynthesis, resp.StatusCode())
	}

	audio := resp.Body()
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrSynthesis)
	}

	return audio, nil
}
