package sqlgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/food-delivery-assistant/agent/contract"
)

// Store runs an accepted statement. Arguments are sent to the server as
// bind parameters.
type Store interface {
	Query(ctx context.Context, query string, args ...any) ([]contractx.Row, error)
}

// SQLStore executes statements inside a read-only transaction so a statement
// that slipped past validation still cannot write.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("sql db is required")
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Query(ctx context.Context, query string, args ...any) (rows []contractx.Row, err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
			err = fmt.Errorf("rollback read-only tx: %w", rbErr)
		}
	}()

	result, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer result.Close()

	cols, err := result.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	rows = []contractx.Row{}
	for result.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := result.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(contractx.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return rows, nil
}
