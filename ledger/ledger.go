// Package ledger keeps the gateway's audit trail (login attempts and
// authenticated accesses) and the credentials used by the basic login module.
//
// Everything lives in a single sqlite database. Audit tables are append-only:
// timestamps are assigned by the database at insert time, never by callers.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	// Unavailable is recorded when the source address of a request is unknown.
	Unavailable = "UNAVAILABLE"
)

type (
	Control struct {
		db        *sql.DB
		writeable bool
	}

	LoginAttempt struct {
		ID            int64
		Username      string
		Timestamp     time.Time
		Success       bool
		SourceAddress string
	}

	Access struct {
		ID        int64
		Username  string
		Timestamp time.Time
	}
)

func openLedgerDatabase(ctx context.Context, file string, readwrite bool) (*sql.DB, error) {
	if readwrite {
		err := os.MkdirAll(filepath.Dir(file), 0755)
		if err != nil {
			return nil, fmt.Errorf("unable to create directory to store ledger %v, cause %w", file, err)
		}
	}
	var connstr string
	if readwrite {
		connstr = fmt.Sprintf("file:%v?_journal=wal&_busy_timeout=5000&mode=rwc", file)
	} else {
		// mode=ro cannot always attach to a WAL database, writes are refused by Control instead
		connstr = fmt.Sprintf("file:%v?_busy_timeout=5000&mode=rw", file)
	}
	conn, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v, cause %w", file, err)
	}
	err = conn.PingContext(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to ping ledger %v, cause %w", file, err)
	}
	return conn, nil
}

// Load opens the ledger stored at file. A writeable ledger has its tables
// created when missing; any ledger has its schema checked before use.
func Load(ctx context.Context, file string, readwrite bool) (*Control, error) {
	conn, err := openLedgerDatabase(ctx, file, readwrite)
	if err != nil {
		return nil, err
	}
	c := &Control{db: conn, writeable: readwrite}
	if readwrite {
		err = c.init(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("unable to init ledger %v, cause %w", file, err)
		}
	}
	err = checkSchema(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger %v has an incompatible schema, cause %w", file, err)
	}
	return c, nil
}

// RecordLogin appends one login attempt.
func (c *Control) RecordLogin(ctx context.Context, username string, success bool, source string) error {
	if !c.writeable {
		return ReadOnly{}
	}
	if source == "" {
		source = Unavailable
	}
	_, err := c.db.ExecContext(ctx, `insert into login_entry(username, success, ip_address) values (?, ?, ?)`,
		username, success, source)
	if err != nil {
		return fmt.Errorf("unable to record login attempt for %v, cause %w", username, err)
	}
	return nil
}

// RecordAccess appends one access entry for an authenticated identity.
func (c *Control) RecordAccess(ctx context.Context, username string) error {
	if !c.writeable {
		return ReadOnly{}
	}
	_, err := c.db.ExecContext(ctx, `insert into access_entry(username) values (?)`, username)
	if err != nil {
		return fmt.Errorf("unable to record access for %v, cause %w", username, err)
	}
	return nil
}

// PasswordHash returns the stored hash for username or UserNotFound.
func (c *Control) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := c.db.QueryRowContext(ctx, `select password from basic_login_user where username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", UserNotFound{Username: username}
	} else if err != nil {
		return "", fmt.Errorf("unable to lookup user %v, cause %w", username, err)
	}
	return hash, nil
}

// AddUser provisions a new credential. The hash is stored as given.
func (c *Control) AddUser(ctx context.Context, username string, hash string) (int64, error) {
	if !c.writeable {
		return 0, ReadOnly{}
	}
	var id int64
	err := c.db.QueryRowContext(ctx, `insert into basic_login_user(username, password) values (?, ?) returning id`,
		username, hash).Scan(&id)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return 0, DuplicateUser{Username: username}
	} else if err != nil {
		return 0, fmt.Errorf("unable to add user %v, cause %w", username, err)
	}
	return id, nil
}

// ListLogins returns at most limit login attempts, newest first.
// A non-positive limit returns everything.
func (c *Control) ListLogins(ctx context.Context, limit int) ([]LoginAttempt, error) {
	rows, err := c.db.QueryContext(ctx, `select id, username, timestamp, success, ip_address
	from login_entry order by id desc limit ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("unable to list login attempts, cause %w", err)
	}
	defer rows.Close()
	var out []LoginAttempt
	for rows.Next() {
		var la LoginAttempt
		err = rows.Scan(&la.ID, &la.Username, &la.Timestamp, &la.Success, &la.SourceAddress)
		if err != nil {
			return nil, fmt.Errorf("unable to scan login attempt, cause %w", err)
		}
		out = append(out, la)
	}
	return out, rows.Err()
}

// ListAccesses returns at most limit access entries, newest first.
func (c *Control) ListAccesses(ctx context.Context, limit int) ([]Access, error) {
	rows, err := c.db.QueryContext(ctx, `select id, username, timestamp
	from access_entry order by id desc limit ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("unable to list access entries, cause %w", err)
	}
	defer rows.Close()
	var out []Access
	for rows.Next() {
		var a Access
		err = rows.Scan(&a.ID, &a.Username, &a.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("unable to scan access entry, cause %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		// sqlite treats a negative limit as "no limit"
		return -1
	}
	return limit
}

func (c *Control) init(ctx context.Context) error {
	for _, cmd := range []string{
		`create table if not exists login_entry(
			id integer not null primary key autoincrement,
			username text not null,
			timestamp datetime not null default current_timestamp,
			success boolean not null,
			ip_address text not null
		)`,
		`create table if not exists basic_login_user(
			id integer not null primary key autoincrement,
			username text not null unique,
			password text not null
		)`,
		`create table if not exists access_entry(
			id integer not null primary key autoincrement,
			username text not null,
			timestamp datetime not null default current_timestamp
		)`,
	} {
		_, err := c.db.ExecContext(ctx, cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Control) Close() error {
	return c.db.Close()
}
