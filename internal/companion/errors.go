package companion

import "errors"

var (
	// ErrInvalidInput 请求缺失必填字段或格式非法
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable 对话模型不可达、超时或返回错误
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrSynthesis 语音合成失败或未配置
	ErrSynthesis = errors.New("speech synthesis failed")
)
