package storage

import (
	"context"
	"database/sql"
	"errors"

	"fraudulert-backend/internal/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already enrolled")
	ErrNoRowsAffected = errors.New("no rows affected")
)

func (s *Storage) GetUser(ctx context.Context, uid string) (*models.User, error) {
	query := `
		SELECT uid, email, username, role, organisation, created_by, first_login, last_login, created_at
		FROM app_users
		WHERE uid = $1
	`

	var user models.User
	if err := s.db.GetContext(ctx, &user, query, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &user, nil
}

// TouchLogin sets last_login to now and clears first_login in one
// statement, returning the pre-update value of first_login. The CTE reads
// the row from the statement snapshot, so the returned flag is the value
// before this update regardless of what it is set to.
func (s *Storage) TouchLogin(ctx context.Context, uid string) (firstLogin bool, err error) {
	query := `
		WITH prev AS (
			SELECT uid, first_login FROM app_users WHERE uid = $1
		)
		UPDATE app_users u
		SET last_login = NOW(), first_login = FALSE
		FROM prev
		WHERE u.uid = prev.uid
		RETURNING prev.first_login
	`

	if err := s.db.QueryRowContext(ctx, query, uid).Scan(&firstLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	return firstLogin, nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO app_users (uid, email, username, role, organisation, created_by, first_login, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		RETURNING created_at
	`

	var createdBy interface{}
	if user.CreatedBy != nil {
		createdBy = *user.CreatedBy
	}

	err := s.db.QueryRowContext(ctx, query,
		user.UID, user.Email, user.Username, user.Role, user.Organisation, createdBy,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return err
	}
	user.FirstLogin = true
	return nil
}

// DeleteUserScoped removes the target only when it sits in the caller's
// organisation and is not an admin. The condition lives in the statement
// itself so a zero-row outcome is detectable by the caller.
func (s *Storage) DeleteUserScoped(ctx context.Context, uid, organisation string) (int64, error) {
	query := `
		DELETE FROM app_users
		WHERE uid = $1 AND organisation = $2 AND role <> 'admin'
	`

	res, err := s.db.ExecContext(ctx, query, uid, organisation)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Storage) ListUsersByCreator(ctx context.Context, creatorUID string) ([]models.User, error) {
	query := `
		SELECT uid, email, username, role, organisation, created_by, first_login, last_login, created_at
		FROM app_users
		WHERE created_by = $1
		ORDER BY created_at DESC
	`

	users := make([]models.User, 0)
	if err := s.db.SelectContext(ctx, &users, query, creatorUID); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserRole changes the role of a non-admin user inside the given
// organisation and reports the updated row, or ErrUserNotFound when the
// scoped condition matched nothing.
func (s *Storage) UpdateUserRole(ctx context.Context, uid, organisation, role string) (*models.User, error) {
	query := `
		UPDATE app_users
		SET role = $3
		WHERE uid = $1 AND organisation = $2 AND role <> 'admin'
		RETURNING uid, email, username, role, organisation, created_by, first_login, last_login, created_at
	`

	var user models.User
	if err := s.db.GetContext(ctx, &user, query, uid, organisation, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
