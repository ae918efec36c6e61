// Package memory implements the long-term context collaborator. Recall is an
// enrichment, not a correctness dependency: every failure maps to
// ErrMemoryUnavailable and the dialogue loop degrades to an empty recall.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
)

const (
	defaultKeyPrefix     = "kiosk:conv:"
	defaultTTL           = 24 * time.Hour
	defaultRecallLimit   = 20
	maxResponseSizeBytes = 2 << 20
)

// RedisOption customizes RedisStore.
type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) RedisOption {
	return func(s *RedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithRecallLimit(limit int) RedisOption {
	return func(s *RedisStore) {
		if limit > 0 {
			s.recallLimit = limit
		}
	}
}

// RedisStore keeps conversation turns in Upstash Redis via its REST API, one
// list per conversation.
type RedisStore struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	keyPrefix   string
	ttl         time.Duration
	recallLimit int
}

var _ contractx.MemoryStore = (*RedisStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type RedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewRedisStore(cfg RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("redis rest url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("redis rest token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &RedisStore{
		baseURL:     baseURL,
		token:       token,
		httpClient:  &http.Client{Timeout: timeout},
		keyPrefix:   defaultKeyPrefix,
		ttl:         defaultTTL,
		recallLimit: defaultRecallLimit,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return store, nil
}

// Persist appends the turn to the conversation's list and refreshes its TTL.
func (s *RedisStore) Persist(ctx context.Context, conversationID string, turn contractx.ConversationTurn) error {
	key, err := s.redisKey(conversationID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("%w: marshal turn: %v", contractx.ErrMemoryUnavailable, err)
	}

	if _, err := s.exec(ctx, []any{"RPUSH", key, string(payload)}); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryUnavailable, err)
	}
	if s.ttl > 0 {
		if _, err := s.exec(ctx, []any{"EXPIRE", key, ttlSeconds(s.ttl)}); err != nil {
			return fmt.Errorf("%w: %v", contractx.ErrMemoryUnavailable, err)
		}
	}
	return nil
}

// Recall returns the most recent turns, filtered by query keyword when one is
// given, in chronological order.
func (s *RedisStore) Recall(ctx context.Context, conversationID string, query string) ([]contractx.ConversationTurn, error) {
	key, err := s.redisKey(conversationID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"LRANGE", key, 0, -1})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrMemoryUnavailable, err)
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, nil
	}

	var encoded []string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("%w: decode turn list: %v", contractx.ErrMemoryUnavailable, err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	turns := make([]contractx.ConversationTurn, 0, len(encoded))
	for _, raw := range encoded {
		var turn contractx.ConversationTurn
		if err := json.Unmarshal([]byte(raw), &turn); err != nil {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(turn.Content), needle) {
			continue
		}
		turns = append(turns, turn)
	}

	if len(turns) > s.recallLimit {
		turns = turns[len(turns)-s.recallLimit:]
	}
	return turns, nil
}

// Clear drops the conversation's list.
func (s *RedisStore) Clear(ctx context.Context, conversationID string) error {
	key, err := s.redisKey(conversationID)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, []any{"DEL", key}); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryUnavailable, err)
	}
	return nil
}

func (s *RedisStore) redisKey(conversationID string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}
	return s.keyPrefix + conversationID + ":turns", nil
}

func (s *RedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
