package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	authcore "github.com/NLyne/authcore"
)

func newUserStoreWithMock(t *testing.T) (*UserStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewUserStore(db), mock, db
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "name", "password_hash", "role", "active", "email_verified",
		"failed_logins", "lockout_until", "totp_enabled", "totp_secret",
		"verification_expires", "reset_expires",
	})
}

func TestGetUserByEmail_Found(t *testing.T) {
	store, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM users WHERE lower\(email\) = lower\(\$1\)$`).
		WithArgs("a@x.com").
		WillReturnRows(userRows().AddRow(
			"u1", "a@x.com", "Alice", "$argon2id$...", "user", true, true,
			0, nil, false, nil, nil, nil,
		))

	user, err := store.GetUserByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.UserID != "u1" || user.Email != "a@x.com" {
		t.Fatalf("unexpected record: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	store, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM users WHERE lower\(email\) = lower\(\$1\)$`).
		WithArgs("missing@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetUserByEmail(context.Background(), "missing@x.com")
	if !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	store, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^\s*INSERT INTO users\b`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := store.CreateUser(context.Background(), authcore.CreateUserInput{
		Email:        "a@x.com",
		PasswordHash: "hash",
		Role:         "user",
	})
	if !errors.Is(err, authcore.ErrEmailExists) {
		t.Fatalf("err = %v, want ErrEmailExists", err)
	}
}

func TestIncrementFailedLogins_ReturnsPostIncrementCount(t *testing.T) {
	store, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*UPDATE users\s+SET failed_logins = failed_logins \+ 1.*RETURNING failed_logins\s*$`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_logins"}).AddRow(3))

	count, err := store.IncrementFailedLogins(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestSetLockout(t *testing.T) {
	store, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	until := time.Now().Add(15 * time.Minute)
	mock.ExpectExec(`^UPDATE users SET lockout_until = \$2`).
		WithArgs("u1", until).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetLockout(context.Background(), "u1", until); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClearLockout_MissingUser(t *testing.T) {
	store, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^UPDATE users SET failed_logins = 0, lockout_until = NULL`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.ClearLockout(context.Background(), "ghost"); !errors.Is(err, authcore.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestConsumeBackupCode(t *testing.T) {
	store, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	var hash [32]byte
	copy(hash[:], []byte("0123456789abcdef0123456789abcdef"))

	mock.ExpectExec(`^DELETE FROM backup_codes WHERE user_id = \$1 AND code_hash = \$2$`).
		WithArgs("u1", hash[:]).
		WillReturnResult(sqlmock.NewResult(0, 1))

	consumed, err := store.ConsumeBackupCode(context.Background(), "u1", hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !consumed {
		t.Fatal("expected code to be consumed")
	}

	mock.ExpectExec(`^DELETE FROM backup_codes WHERE user_id = \$1 AND code_hash = \$2$`).
		WithArgs("u1", hash[:]).
		WillReturnResult(sqlmock.NewResult(0, 0))

	consumed, err = store.ConsumeBackupCode(context.Background(), "u1", hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed {
		t.Fatal("second consume must report absent")
	}
}

func TestReplaceBackupCodes_TxRollsBackOnError(t *testing.T) {
	store, mock, db := newUserStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM backup_codes WHERE user_id = \$1$`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`^INSERT INTO backup_codes`).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := store.ReplaceBackupCodes(context.Background(), "u1", []authcore.BackupCodeRecord{{}})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
