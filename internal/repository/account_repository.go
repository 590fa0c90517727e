package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/yourorg/trading-engine/internal/model"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// AccountRepository handles database operations for broker accounts
type AccountRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

// GetByAccountNo loads an account by its broker account number
func (r *AccountRepository) GetByAccountNo(ctx context.Context, accountNo string) (*model.Account, error) {
	query := `
		SELECT id, account_no, account_type, app_key, app_secret, access_token, token_expired_at,
			account_balance, is_active, created_at, updated_at
		FROM accounts
		WHERE account_no = $1
	`

	var a model.Account
	err := r.db.GetContext(ctx, &a, query, accountNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get account",
			zap.Error(err),
			zap.String("account_no", accountNo))
		return nil, err
	}

	return &a, nil
}

// UpdateToken stores a freshly issued access token and its expiry
func (r *AccountRepository) UpdateToken(ctx context.Context, accountID int64, token string, expiresAt time.Time) error {
	query := `
		UPDATE accounts
		SET access_token = $2,
			token_expired_at = $3,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, accountID, token, expiresAt)
	if err != nil {
		r.logger.Error("Failed to update account token",
			zap.Error(err),
			zap.Int64("account_id", accountID))
		return err
	}

	return nil
}

// UpdateBalance overwrites the stored cash balance
func (r *AccountRepository) UpdateBalance(ctx context.Context, accountID int64, balance float64) error {
	query := `
		UPDATE accounts
		SET account_balance = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, accountID, balance)
	if err != nil {
		r.logger.Error("Failed to update account balance",
			zap.Error(err),
			zap.Int64("account_id", accountID))
		return err
	}

	return nil
}
