package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/companion/store"
)

// CreateMessage appends a message row and returns it with the generated id.
func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	stmt := `
		INSERT INTO messages (content, is_user, timestamp, importance)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Content,
		create.IsUser,
		create.Timestamp,
		create.Importance,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	return create, nil
}

// ListMessages lists messages, newest first.
func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ContentQuery != nil {
		where, args = append(where, "content LIKE ?"), append(args, "%"+*find.ContentQuery+"%")
	}

	query := `SELECT id, content, is_user, timestamp, importance
		FROM messages
		WHERE ` + where[0]
	for _, cond := range where[1:] {
		query += " AND " + cond
	}
	query += " ORDER BY timestamp DESC, id DESC"

	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var message store.Message
		if err := rows.Scan(
			&message.ID,
			&message.Content,
			&message.IsUser,
			&message.Timestamp,
			&message.Importance,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// CountMessages counts messages, optionally filtered by sender.
func (d *DB) CountMessages(ctx context.Context, isUser *bool) (int64, error) {
	query := "SELECT COUNT(*) FROM messages"
	args := []any{}
	if isUser != nil {
		query += " WHERE is_user = ?"
		args = append(args, *isUser)
	}

	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count messages")
	}
	return count, nil
}
