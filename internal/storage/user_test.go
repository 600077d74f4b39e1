package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"fraudulert-backend/internal/models"
)

func newTestStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStorage(sqlx.NewDb(db, "sqlmock")), mock
}

func TestTouchLoginReturnsPreUpdateFlag(t *testing.T) {
	store, mock := newTestStorage(t)

	mock.ExpectQuery("WITH prev AS").
		WithArgs("uid-1").
		WillReturnRows(sqlmock.NewRows([]string{"first_login"}).AddRow(true))

	first, err := store.TouchLogin(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("TouchLogin: %v", err)
	}
	if !first {
		t.Fatal("expected the pre-update first_login value")
	}

	// Second login sees the cleared flag.
	mock.ExpectQuery("WITH prev AS").
		WithArgs("uid-1").
		WillReturnRows(sqlmock.NewRows([]string{"first_login"}).AddRow(false))

	first, err = store.TouchLogin(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("TouchLogin: %v", err)
	}
	if first {
		t.Fatal("first_login must fire once")
	}
}

func TestTouchLoginUnknownUser(t *testing.T) {
	store, mock := newTestStorage(t)

	mock.ExpectQuery("WITH prev AS").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"first_login"}))

	_, err := store.TouchLogin(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateUserEmailTaken(t *testing.T) {
	store, mock := newTestStorage(t)

	mock.ExpectQuery("INSERT INTO app_users").
		WillReturnError(&pq.Error{Code: "23505"})

	createdBy := "admin-1"
	err := store.CreateUser(context.Background(), &models.User{
		UID: "u1", Email: "dup@example.com", Username: "dup",
		Role: models.RoleViewer, Organisation: "acme", CreatedBy: &createdBy,
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestDeleteUserScopedCounts(t *testing.T) {
	store, mock := newTestStorage(t)

	mock.ExpectExec("DELETE FROM app_users").
		WithArgs("uid-1", "acme").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.DeleteUserScoped(context.Background(), "uid-1", "acme")
	if err != nil {
		t.Fatalf("DeleteUserScoped: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}

	mock.ExpectExec("DELETE FROM app_users").
		WithArgs("admin-2", "acme").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err = store.DeleteUserScoped(context.Background(), "admin-2", "acme")
	if err != nil {
		t.Fatalf("DeleteUserScoped: %v", err)
	}
	if n != 0 {
		t.Fatalf("admin rows must never match the conditioned delete, got %d", n)
	}
}

func TestUpdateUserRoleScoped(t *testing.T) {
	store, mock := newTestStorage(t)

	mock.ExpectQuery("UPDATE app_users").
		WithArgs("uid-1", "acme", "admin").
		WillReturnRows(sqlmock.NewRows([]string{
			"uid", "email", "username", "role", "organisation", "created_by", "first_login", "last_login", "created_at",
		}).AddRow("uid-1", "u@example.com", "u", "admin", "acme", "admin-1", false, time.Now(), time.Now()))

	user, err := store.UpdateUserRole(context.Background(), "uid-1", "acme", "admin")
	if err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	if user.Role != models.RoleAdmin {
		t.Fatalf("role not updated: %+v", user)
	}

	mock.ExpectQuery("UPDATE app_users").
		WithArgs("uid-1", "other-org", "viewer").
		WillReturnRows(sqlmock.NewRows([]string{
			"uid", "email", "username", "role", "organisation", "created_by", "first_login", "last_login", "created_at",
		}))

	_, err = store.UpdateUserRole(context.Background(), "uid-1", "other-org", "viewer")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("cross-organisation update must not match, got %v", err)
	}
}
