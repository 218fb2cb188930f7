package task

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSQLStoreRejectsNilDB(t *testing.T) {
	_, err := NewSQLStore(nil, "postgres")
	require.Error(t, err)
}

func TestNewSQLStoreRejectsUnknownDialect(t *testing.T) {
	_, err := NewSQLStore(new(sql.DB), "oracle")
	require.Error(t, err)
}

func TestSQLStorePlaceholderPerDialect(t *testing.T) {
	cases := []struct {
		dialect string
		want    string
	}{
		{"postgres", "$1"},
		{"mysql", "?"},
		{"sqlite", "?"},
	}
	for _, c := range cases {
		s := &SQLStore{dialect: c.dialect}
		require.Equal(t, c.want, s.placeholder(1))
	}
}
