package entity

import (
	"context"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB serves canned rows keyed by a substring of the query.
type fakeDB struct {
	results map[string][][]any
	errs    map[string]error
	queries []string
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	for k, err := range f.errs {
		if strings.Contains(sql, k) {
			return nil, err
		}
	}
	for k, rows := range f.results {
		if strings.Contains(sql, k) {
			return &fakeRows{rows: rows, idx: -1}, nil
		}
	}
	return &fakeRows{idx: -1}, nil
}

type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	for i, d := range dest {
		if v := r.rows[r.idx][i]; v != nil {
			reflect.ValueOf(d).Elem().Set(reflect.ValueOf(v))
		}
	}
	return nil
}
