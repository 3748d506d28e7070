package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/companion/store"
)

// CreateFact appends a fact row and returns it with the generated id.
func (d *DB) CreateFact(ctx context.Context, create *store.Fact) (*store.Fact, error) {
	stmt := `
		INSERT INTO facts (subject, predicate, object, confidence, source, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Subject,
		create.Predicate,
		create.Object,
		create.Confidence,
		create.Source,
		create.Timestamp,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create fact")
	}
	return create, nil
}

// ListFacts lists facts ordered by descending confidence.
func (d *DB) ListFacts(ctx context.Context, find *store.FindFact) ([]*store.Fact, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Subject != nil {
		where, args = append(where, "subject = ?"), append(args, *find.Subject)
	}

	query := `SELECT id, subject, predicate, object, confidence, source, timestamp
		FROM facts
		WHERE ` + where[0]
	for _, cond := range where[1:] {
		query += " AND " + cond
	}
	query += " ORDER BY confidence DESC, id ASC"

	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list facts")
	}
	defer rows.Close()

	var facts []*store.Fact
	for rows.Next() {
		var fact store.Fact
		var source sql.NullString
		if err := rows.Scan(
			&fact.ID,
			&fact.Subject,
			&fact.Predicate,
			&fact.Object,
			&fact.Confidence,
			&source,
			&fact.Timestamp,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan fact")
		}
		if source.Valid {
			fact.Source = &source.String
		}
		facts = append(facts, &fact)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return facts, nil
}

// CountFacts counts all facts.
func (d *DB) CountFacts(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count facts")
	}
	return count, nil
}
