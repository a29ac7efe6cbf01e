package sqlite

import "testing"

func NewSQLiteTest(t *testing.T, opts ...Option) *Store {
	t.Helper()
	st, err := NewInMemory(opts...)
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
