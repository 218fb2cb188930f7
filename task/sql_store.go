// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// createTaskTableSQL is compatible with all three supported dialects, per
// the teacher's SQLTaskService.initSchema (one schema, no per-dialect DDL).
const createTaskTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id VARCHAR(255) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	description TEXT,
	agent_id VARCHAR(255) NOT NULL,
	input TEXT,
	state VARCHAR(50) NOT NULL,
	result TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLStore is a database/sql-backed Store, grounded on the teacher's
// pkg/agent/task_service_sql.go SQLTaskService: one schema shared across
// PostgreSQL, MySQL, and SQLite, selected by dialect at construction time.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLStore wraps an already-opened db (sql.Open with the driver matching
// dialect — "postgres", "mysql", or "sqlite", the last backed by
// github.com/mattn/go-sqlite3 registering itself as "sqlite3") and creates
// the tasks table if it does not exist.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("task: database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("task: unsupported dialect %q (want postgres, mysql, or sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createTaskTableSQL); err != nil {
		return nil, fmt.Errorf("task: create schema: %w", err)
	}
	return s, nil
}

// OpenSQLStore opens a database/sql connection for dialect/dsn (mapping the
// config-facing "sqlite" dialect name to the go-sqlite3 driver's registered
// name "sqlite3", same translation as the teacher's
// NewSQLTaskServiceFromConfig) and wraps it in a SQLStore.
func OpenSQLStore(dialect, dsn string) (*SQLStore, error) {
	driverName := dialect
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("task: open %s database: %w", dialect, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("task: ping %s database: %w", dialect, err)
	}
	return NewSQLStore(db, dialect)
}

// placeholder renders the nth (1-indexed) positional parameter marker for
// the store's dialect: "$n" for postgres, "?" for mysql and sqlite.
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Get(id string) (*Task, error) {
	query := fmt.Sprintf(
		`SELECT id, name, description, agent_id, input, state, result, created_at, updated_at FROM tasks WHERE id = %s`,
		s.placeholder(1),
	)
	var (
		t                    Task
		description          sql.NullString
		input, state, result sql.NullString
	)
	err := s.db.QueryRow(query, id).Scan(
		&t.ID, &t.Name, &description, &t.AgentID, &input, &state, &result, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("task: query %s: %w", id, err)
	}
	if err := hydrate(&t, description, input, state, result); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLStore) Put(t *Task) error {
	var resultJSON []byte
	if t.Result != nil {
		var err error
		resultJSON, err = json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("task: encode result for %s: %w", t.ID, err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("task: begin transaction: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf(`DELETE FROM tasks WHERE id = %s`, s.placeholder(1))
	if _, err := tx.Exec(del, t.ID); err != nil {
		return fmt.Errorf("task: delete existing row for %s: %w", t.ID, err)
	}

	ins := fmt.Sprintf(
		`INSERT INTO tasks (id, name, description, agent_id, input, state, result, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9),
	)
	if _, err := tx.Exec(ins,
		t.ID, t.Name, t.Description, t.AgentID, string(t.Input), string(t.State), string(resultJSON), t.CreatedAt, t.UpdatedAt,
	); err != nil {
		return fmt.Errorf("task: insert %s: %w", t.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("task: commit %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLStore) List() ([]*Task, error) {
	query := `SELECT id, name, description, agent_id, input, state, result, created_at, updated_at FROM tasks ORDER BY created_at`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("task: list: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		var (
			t                    Task
			description          sql.NullString
			input, state, result sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.AgentID, &input, &state, &result, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("task: scan row: %w", err)
		}
		if err := hydrate(&t, description, input, state, result); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task: list: %w", err)
	}
	return out, nil
}

// hydrate fills in t's nullable columns after a Scan.
func hydrate(t *Task, description, input, state, result sql.NullString) error {
	t.Description = description.String
	t.Input = json.RawMessage(input.String)
	t.State = State(state.String)
	if result.Valid && result.String != "" {
		var r Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return fmt.Errorf("task: decode result for %s: %w", t.ID, err)
		}
		t.Result = &r
	}
	return nil
}

// Close releases the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
