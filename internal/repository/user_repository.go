package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stylemart/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user with this email already exists")
	ErrAddressNotFound   = errors.New("address not found")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, user *domain.User) error
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	List(ctx context.Context, page, pageSize int) ([]*domain.User, int, error)

	AddAddress(ctx context.Context, address *domain.Address) error
	UpdateAddress(ctx context.Context, address *domain.Address) error
	DeleteAddress(ctx context.Context, userID, addressID uuid.UUID) error
	ListAddresses(ctx context.Context, userID uuid.UUID) ([]domain.Address, error)
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create inserts a new user into the database using parameterized queries
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// FindByEmail retrieves a user by email using parameterized queries
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// FindByID retrieves a user by ID using parameterized queries
func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// UpdateProfile updates mutable profile fields (name, phone)
func (r *userRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, phone = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, user.ID, user.FirstName, user.LastName, user.Phone)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdateRole changes a user's role
func (r *userRepository) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// List retrieves users with pagination, newest first
func (r *userRepository) List(ctx context.Context, page, pageSize int) ([]*domain.User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`SELECT %s FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, userColumns)

	rows, err := r.db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating users: %w", err)
	}

	return users, total, nil
}

// AddAddress inserts an address book entry. When the new entry is the
// default, the previous default is cleared in the same transaction.
func (r *userRepository) AddAddress(ctx context.Context, address *domain.Address) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin address transaction: %w", err)
	}
	defer tx.Rollback()

	if address.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE addresses SET is_default = FALSE WHERE user_id = $1`, address.UserID); err != nil {
			return fmt.Errorf("failed to clear default address: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO addresses (id, user_id, name, phone, address, city, postal_code, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		address.ID,
		address.UserID,
		address.Name,
		address.Phone,
		address.Address,
		address.City,
		address.PostalCode,
		address.IsDefault,
	)
	if err != nil {
		return fmt.Errorf("failed to add address: %w", err)
	}

	return tx.Commit()
}

// UpdateAddress updates an address book entry owned by address.UserID
func (r *userRepository) UpdateAddress(ctx context.Context, address *domain.Address) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin address transaction: %w", err)
	}
	defer tx.Rollback()

	if address.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE addresses SET is_default = FALSE WHERE user_id = $1`, address.UserID); err != nil {
			return fmt.Errorf("failed to clear default address: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE addresses
		SET name = $3, phone = $4, address = $5, city = $6, postal_code = $7, is_default = $8
		WHERE id = $1 AND user_id = $2
	`,
		address.ID,
		address.UserID,
		address.Name,
		address.Phone,
		address.Address,
		address.City,
		address.PostalCode,
		address.IsDefault,
	)
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAddressNotFound
	}

	return tx.Commit()
}

// DeleteAddress removes an address book entry owned by userID
func (r *userRepository) DeleteAddress(ctx context.Context, userID, addressID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAddressNotFound
	}

	return nil
}

// ListAddresses retrieves a user's address book, default first
func (r *userRepository) ListAddresses(ctx context.Context, userID uuid.UUID) ([]domain.Address, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, phone, address, city, postal_code, is_default
		FROM addresses
		WHERE user_id = $1
		ORDER BY is_default DESC, name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []domain.Address{}
	for rows.Next() {
		address := domain.Address{}
		err := rows.Scan(
			&address.ID,
			&address.UserID,
			&address.Name,
			&address.Phone,
			&address.Address,
			&address.City,
			&address.PostalCode,
			&address.IsDefault,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		addresses = append(addresses, address)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating addresses: %w", err)
	}

	return addresses, nil
}
