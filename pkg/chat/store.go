package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harunnryd/tintuc/pkg/errorsx"
)

var ErrConversationNotFound = errors.New("conversation not found")

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type Conversation struct {
	ID           int64
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastMessage  string
	MessageCount int
}

type Message struct {
	ID             int64
	ConversationID int64
	Sender         Sender
	Text           string
	// ImageRefs are the attachment references (paths or URLs) sent with
	// the message.
	ImageRefs []string
	CreatedAt time.Time
}

// Store persists conversations and their messages.
type Store interface {
	CreateConversation(ctx context.Context, title string) (Conversation, error)
	GetConversation(ctx context.Context, id int64) (Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	RenameConversation(ctx context.Context, id int64, title string) error
	DeleteConversation(ctx context.Context, id int64) error
	AddMessage(ctx context.Context, msg *Message) error
	Messages(ctx context.Context, conversationID int64) ([]Message, error)
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	sender TEXT NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	image_urls TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SQLStore is a Store on SQLite.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and creates) the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := ":memory:"
	if path != ":memory:" && path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) CreateConversation(ctx context.Context, title string) (Conversation, error) {
	now := s.now()
	query, args, err := psql.Insert("conversations").
		Columns("title", "created_at", "updated_at").
		Values(title, now, now).
		ToSql()
	if err != nil {
		return Conversation{}, storeErr("build insert", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Conversation{}, storeErr("create conversation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Conversation{}, storeErr("conversation id", err)
	}
	return Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	convs, err := s.listConversations(ctx, sq.Eq{"c.id": id})
	if err != nil {
		return Conversation{}, err
	}
	if len(convs) == 0 {
		return Conversation{}, fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}
	return convs[0], nil
}

// ListConversations returns every conversation, most recently active first.
func (s *SQLStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	return s.listConversations(ctx, nil)
}

func (s *SQLStore) listConversations(ctx context.Context, where sq.Sqlizer) ([]Conversation, error) {
	b := psql.Select(
		"c.id", "c.title", "c.created_at", "c.updated_at",
		"(SELECT m.text FROM messages m WHERE m.conversation_id = c.id ORDER BY m.created_at DESC, m.id DESC LIMIT 1)",
		"(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)",
	).From("conversations c").OrderBy("c.updated_at DESC", "c.id DESC")
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, storeErr("build select", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var last sql.NullString
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &last, &c.MessageCount); err != nil {
			return nil, storeErr("scan conversation", err)
		}
		c.LastMessage = last.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list conversations", err)
	}
	return out, nil
}

func (s *SQLStore) RenameConversation(ctx context.Context, id int64, title string) error {
	query, args, err := psql.Update("conversations").
		Set("title", title).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return storeErr("build update", err)
	}
	return s.execOne(ctx, id, query, args)
}

// DeleteConversation removes the conversation and its messages.
func (s *SQLStore) DeleteConversation(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Delete("messages").Where(sq.Eq{"conversation_id": id}).ToSql()
	if err != nil {
		return storeErr("build delete", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return storeErr("delete messages", err)
	}
	query, args, err = psql.Delete("conversations").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return storeErr("build delete", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr("delete conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// AddMessage stores msg, filling ID and CreatedAt, and bumps the
// conversation's updated_at.
func (s *SQLStore) AddMessage(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	var images any
	if len(msg.ImageRefs) > 0 {
		raw, err := json.Marshal(msg.ImageRefs)
		if err != nil {
			return storeErr("encode image refs", err)
		}
		images = string(raw)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Insert("messages").
		Columns("conversation_id", "sender", "text", "image_urls", "created_at").
		Values(msg.ConversationID, string(msg.Sender), msg.Text, images, msg.CreatedAt).
		ToSql()
	if err != nil {
		return storeErr("build insert", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr("insert message", err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return storeErr("message id", err)
	}

	query, args, err = psql.Update("conversations").
		Set("updated_at", msg.CreatedAt).
		Where(sq.Eq{"id": msg.ConversationID}).
		ToSql()
	if err != nil {
		return storeErr("build update", err)
	}
	res, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr("touch conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrConversationNotFound, msg.ConversationID)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// Messages returns a conversation's messages oldest first.
func (s *SQLStore) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	query, args, err := psql.Select("id", "conversation_id", "sender", "text", "image_urls", "created_at").
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, storeErr("build select", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var sender string
		var images sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Text, &images, &m.CreatedAt); err != nil {
			return nil, storeErr("scan message", err)
		}
		m.Sender = Sender(sender)
		m.ImageRefs = decodeImageRefs(images.String)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list messages", err)
	}
	return out, nil
}

func (s *SQLStore) execOne(ctx context.Context, id int64, query string, args []any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr("update conversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}
	return nil
}

// decodeImageRefs accepts a JSON array or a single bare reference.
func decodeImageRefs(raw string) []string {
	if raw == "" {
		return nil
	}
	var refs []string
	if raw[0] == '[' {
		if err := json.Unmarshal([]byte(raw), &refs); err == nil {
			return refs
		}
		return nil
	}
	return []string{raw}
}

func storeErr(op string, err error) error {
	return errorsx.Wrapf(errorsx.ReasonStore, "%s: %w", op, err)
}

var _ Store = (*SQLStore)(nil)
