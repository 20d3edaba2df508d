package handler

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// handlerMockDB implements core.DB for handler tests.
type handlerMockDB struct {
	mock.Mock
}

func (m *handlerMockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *handlerMockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *handlerMockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

func (m *handlerMockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

// handlerMockRow implements pgx.Row.
type handlerMockRow struct {
	scanFunc func(dest ...any) error
}

func (r *handlerMockRow) Scan(dest ...any) error {
	return r.scanFunc(dest...)
}

func rowErr(err error) *handlerMockRow {
	return &handlerMockRow{scanFunc: func(...any) error { return err }}
}

func rowValues(values ...any) *handlerMockRow {
	return &handlerMockRow{scanFunc: func(dest ...any) error {
		if len(dest) != len(values) {
			return errors.New("scan: column count mismatch")
		}
		for i, v := range values {
			if err := assign(dest[i], v); err != nil {
				return err
			}
		}
		return nil
	}}
}

// assign covers the destination types the services scan into.
func assign(dest, v any) error {
	switch d := dest.(type) {
	case *string:
		*d = v.(string)
	case **string:
		if v == nil {
			*d = nil
		} else {
			s := v.(string)
			*d = &s
		}
	case *int64:
		*d = v.(int64)
	case *bool:
		*d = v.(bool)
	case *time.Time:
		*d = v.(time.Time)
	case **time.Time:
		if v == nil {
			*d = nil
		} else {
			t := v.(time.Time)
			*d = &t
		}
	default:
		return errors.New("scan: unsupported destination type")
	}
	return nil
}

// handlerMockRows implements pgx.Rows with no rows.
type handlerMockRows struct{}

func (handlerMockRows) Next() bool                                   { return false }
func (handlerMockRows) Scan(dest ...any) error                       { return nil }
func (handlerMockRows) Err() error                                   { return nil }
func (handlerMockRows) Close()                                       {}
func (handlerMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (handlerMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (handlerMockRows) RawValues() [][]byte                          { return nil }
func (handlerMockRows) Values() ([]any, error)                       { return nil, nil }
func (handlerMockRows) Conn() *pgx.Conn                              { return nil }
