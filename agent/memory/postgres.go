package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/hanbit-dev/kiosk-agent/agent/contract"
)

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"5s"`
	RecallLimit  int           `envconfig:"RECALL_LIMIT" split_words:"true" default:"20"`
}

// turnRecord is the persisted shape of a conversation turn. Tool calls are
// stored as a JSON blob so the schema stays stable when the tool surface grows.
type turnRecord struct {
	bun.BaseModel `bun:"table:kiosk_turns,alias:kt"`

	ID             int64     `bun:"id,pk,autoincrement"`
	ConversationID string    `bun:"conversation_id,notnull"`
	Role           string    `bun:"role,notnull"`
	Content        string    `bun:"content"`
	ToolCallID     string    `bun:"tool_call_id"`
	ToolCalls      []byte    `bun:"tool_calls,type:jsonb,nullzero"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// PostgresStore keeps conversation turns in a kiosk_turns table.
type PostgresStore struct {
	db           *bun.DB
	queryTimeout time.Duration
	recallLimit  int
}

var _ contractx.MemoryStore = (*PostgresStore)(nil)

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := cfg.RecallLimit
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	return &PostgresStore{
		db:           db,
		queryTimeout: timeout,
		recallLimit:  limit,
	}, nil
}

// Init creates the backing table when it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.db.NewCreateTable().Model((*turnRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("%w: create kiosk_turns: %v", contractx.ErrMemoryUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Persist(ctx context.Context, conversationID string, turn contractx.ConversationTurn) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}

	record := turnRecord{
		ConversationID: conversationID,
		Role:           string(turn.Role),
		Content:        turn.Content,
		ToolCallID:     turn.ToolCallID,
		CreatedAt:      time.Now().UTC(),
	}
	if len(turn.ToolCalls) > 0 {
		encoded, err := json.Marshal(turn.ToolCalls)
		if err != nil {
			return fmt.Errorf("%w: marshal tool calls: %v", contractx.ErrMemoryUnavailable, err)
		}
		record.ToolCalls = encoded
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	if _, err := s.db.NewInsert().Model(&record).Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Recall(ctx context.Context, conversationID string, query string) ([]contractx.ConversationTurn, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var records []turnRecord
	q := s.db.NewSelect().
		Model(&records).
		Where("conversation_id = ?", conversationID)
	if needle := strings.TrimSpace(query); needle != "" {
		q = q.Where("content ILIKE ?", "%"+needle+"%")
	}
	if err := q.Order("created_at DESC").Limit(s.recallLimit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrMemoryUnavailable, err)
	}

	// newest-first from the query, chronological for the caller
	turns := make([]contractx.ConversationTurn, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		turn := contractx.ConversationTurn{
			Role:       contractx.Role(rec.Role),
			Content:    rec.Content,
			ToolCallID: rec.ToolCallID,
		}
		if len(rec.ToolCalls) > 0 {
			if err := json.Unmarshal(rec.ToolCalls, &turn.ToolCalls); err != nil {
				turn.ToolCalls = nil
			}
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
