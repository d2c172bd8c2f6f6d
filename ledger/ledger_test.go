package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/andrebq/portcullis/internal/testutil"
	"github.com/andrebq/portcullis/ledger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestRecordLogin(t *testing.T) {
	ctx := context.Background()
	l, cleanup := testutil.AcquireLedger(ctx, t, "audit", nil)
	defer cleanup()

	require.NoError(t, l.RecordLogin(ctx, "alice", true, "10.0.0.1"))
	require.NoError(t, l.RecordLogin(ctx, "bob", false, ""))

	attempts, err := l.ListLogins(ctx, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	// newest first
	require.Equal(t, "bob", attempts[0].Username)
	require.False(t, attempts[0].Success)
	require.Equal(t, ledger.Unavailable, attempts[0].SourceAddress)
	require.Equal(t, "alice", attempts[1].Username)
	require.True(t, attempts[1].Success)
	require.Equal(t, "10.0.0.1", attempts[1].SourceAddress)
	require.False(t, attempts[1].Timestamp.IsZero(), "timestamp should be set by the ledger")

	attempts, err = l.ListLogins(ctx, 1)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
}

func TestRecordAccess(t *testing.T) {
	ctx := context.Background()
	l, cleanup := testutil.AcquireLedger(ctx, t, "audit", nil)
	defer cleanup()

	require.NoError(t, l.RecordAccess(ctx, "alice"))
	accesses, err := l.ListAccesses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, accesses, 1)
	require.Equal(t, "alice", accesses[0].Username)
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	l, cleanup := testutil.AcquireLedger(ctx, t, "users", nil)
	defer cleanup()

	_, err := l.PasswordHash(ctx, "alice")
	if !errors.Is(err, ledger.UserNotFound{Username: "alice"}) {
		t.Fatalf("Expecting UserNotFound got %#v", err)
	}

	id, err := l.AddUser(ctx, "alice", "$argon2id$fake")
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	_, err = l.AddUser(ctx, "alice", "$argon2id$other")
	if !errors.Is(err, ledger.DuplicateUser{Username: "alice"}) {
		t.Fatalf("Expecting DuplicateUser got %#v", err)
	}

	hash, err := l.PasswordHash(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "$argon2id$fake", hash)
}

func TestReadOnlyLedger(t *testing.T) {
	ctx := context.Background()
	file, cleanup := testutil.TempPath(t, "ro.db")
	defer cleanup()

	rw, err := ledger.Load(ctx, file, true)
	require.NoError(t, err)
	require.NoError(t, rw.RecordLogin(ctx, "alice", true, "127.0.0.1"))
	require.NoError(t, rw.Close())

	ro, err := ledger.Load(ctx, file, false)
	require.NoError(t, err)
	defer ro.Close()
	err = ro.RecordLogin(ctx, "alice", true, "127.0.0.1")
	require.ErrorIs(t, err, ledger.ReadOnly{})
	attempts, err := ro.ListLogins(ctx, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
}

func TestIncompatibleSchema(t *testing.T) {
	ctx := context.Background()
	file, cleanup := testutil.TempPath(t, "legacy.db")
	defer cleanup()

	db, err := sql.Open("sqlite3", "file:"+file+"?mode=rwc")
	require.NoError(t, err)
	for _, stmt := range []string{
		`create table login_entry(id integer primary key, username text, timestamp datetime, success boolean, ip_address text)`,
		`create table access_entry(id integer primary key, username text, timestamp datetime)`,
		`create table basic_login_user(id integer primary key, username text, password text)`,
	} {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	_, err = ledger.Load(ctx, file, false)
	var mismatch ledger.SchemaMismatch
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "basic_login_user", mismatch.Table)
	require.Equal(t, "username", mismatch.Column)
}
