package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BharathRai/miraii-backend/internal/companion"
	"github.com/BharathRai/miraii-backend/internal/config"
	"github.com/BharathRai/miraii-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeReplier 固定回复的对话引擎
type fakeReplier struct {
	reply *models.CompanionReply
	err   error
}

func (f *fakeReplier) TextReply(ctx context.Context, req *models.CompanionRequest) (*models.CompanionReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeReplier) VoiceReply(ctx context.Context, req *models.CompanionRequest) (*models.CompanionReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func setupCompanionEnv(t *testing.T, replier companion.Replier) (*Router, *companion.Memory) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{}
	cfg.Companion.Memory.KeyPrefix = "elai:conv:"
	cfg.Companion.Memory.MaxMessages = 20
	cfg.Companion.Memory.TTL = 86400

	logger := zap.NewNop()
	memory := companion.NewMemory(cfg, client, logger)

	handler := NewCompanionHandler(replier, memory, companion.Capabilities{LLM: true, TTS: true}, logger)
	router := NewRouter(logger)
	router.RegisterCompanionRoutes(handler)

	return router, memory
}

func TestCompanionRoot(t *testing.T) {
	router, _ := setupCompanionEnv(t, &fakeReplier{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"elai-companion"`)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"tts":true`)
}

func TestCompanionRoot_DegradedWithoutTTS(t *testing.T) {
	logger := zap.NewNop()
	handler := NewCompanionHandler(&fakeReplier{}, nil, companion.Capabilities{LLM: true, TTS: false}, logger)
	router := NewRouter(logger)
	router.RegisterCompanionRoutes(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), `"tts":false`)
}

func TestTextReply_Endpoint(t *testing.T) {
	replier := &fakeReplier{reply: &models.CompanionReply{
		ReplyText:      "Hello! How are you feeling today?",
		ConversationID: "conv_abc123",
		Model:          "gpt-4o",
	}}
	router, _ := setupCompanionEnv(t, replier)

	body := `{"text": "hello"}`
	req := httptest.NewRequest(http.MethodPost, "/text/reply", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "conv_abc123")
	assert.Contains(t, rec.Body.String(), "How are you feeling")
}

func TestTextReply_Endpoint_InvalidInput(t *testing.T) {
	replier := &fakeReplier{err: companion.ErrInvalidInput}
	router, _ := setupCompanionEnv(t, replier)

	req := httptest.NewRequest(http.MethodPost, "/text/reply", strings.NewReader(`{"text": ""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTextReply_Endpoint_ModelUnavailable(t *testing.T) {
	replier := &fakeReplier{err: companion.ErrModelUnavailable}
	router, _ := setupCompanionEnv(t, replier)

	req := httptest.NewRequest(http.MethodPost, "/text/reply", strings.NewReader(`{"text": "hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "model unavailable")
}

func TestVoiceReply_Endpoint(t *testing.T) {
	replier := &fakeReplier{reply: &models.CompanionReply{
		ReplyText:      "Here you go.",
		ConversationID: "conv_voice1",
		Audio:          []byte("mp3-bytes"),
		AudioMIME:      "audio/mpeg",
	}}
	router, _ := setupCompanionEnv(t, replier)

	req := httptest.NewRequest(http.MethodPost, "/voice/reply", strings.NewReader(`{"text": "hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var reply models.CompanionReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, []byte("mp3-bytes"), reply.Audio)
	assert.Equal(t, "audio/mpeg", reply.AudioMIME)
}

func TestVoiceReply_Endpoint_SynthesisError(t *testing.T) {
	replier := &fakeReplier{err: companion.ErrSynthesis}
	router, _ := setupCompanionEnv(t, replier)

	req := httptest.NewRequest(http.MethodPost, "/voice/reply", strings.NewReader(`{"text": "hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "synthesis")
}

func TestListConversations_Endpoint(t *testing.T) {
	router, memory := setupCompanionEnv(t, &fakeReplier{})
	ctx := context.Background()

	for _, id := range []string{"conv_b", "conv_a"} {
		require.NoError(t, memory.AppendMessage(ctx, id, &models.ConversationMessage{
			Role: models.RoleUser, Content: "hello",
		}))
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"conv_a", "conv_b"}, resp.Conversations)
	assert.Equal(t, 2, resp.Count)
}

func TestGetConversation_Endpoint(t *testing.T) {
	router, memory := setupCompanionEnv(t, &fakeReplier{})
	ctx := context.Background()

	require.NoError(t, memory.AppendMessage(ctx, "conv_hist", &models.ConversationMessage{
		Role: models.RoleUser, Content: "hello", Timestamp: 100,
	}))

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv_hist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conv_hist", resp.ConversationID)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hello", resp.Messages[0].Content)
}

func TestGetConversation_Endpoint_NotFound(t *testing.T) {
	router, _ := setupCompanionEnv(t, &fakeReplier{})

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv_missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteConversation_Endpoint(t *testing.T) {
	router, memory := setupCompanionEnv(t, &fakeReplier{})
	ctx := context.Background()

	require.NoError(t, memory.AppendMessage(ctx, "conv_del", &models.ConversationMessage{
		Role: models.RoleUser, Content: "hello",
	}))

	req := httptest.NewRequest(http.MethodDelete, "/conversations/conv_del", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	exists, err := memory.ConversationExists(ctx, "conv_del")
	require.NoError(t, err)
	assert.False(t, exists)
}
