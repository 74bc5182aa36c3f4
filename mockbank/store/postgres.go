package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Gabrielbm2/chatbot-telegram/mockbank/model"
)

// Postgres is the sqlx-backed Store.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open connection. The schema must already be migrated.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type userRow struct {
	UserID    int64           `db:"user_id"`
	Balance   decimal.Decimal `db:"balance"`
	Session   []byte          `db:"session"`
	CreatedAt time.Time       `db:"created_at"`
}

const (
	selectUserSQL    = `SELECT user_id, balance, session, created_at FROM users WHERE user_id = $1`
	selectMethodsSQL = `SELECT type, crypto_type, details FROM payment_methods WHERE user_id = $1 ORDER BY id`
	insertUserSQL    = `INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	insertMethodSQL  = `INSERT INTO payment_methods (user_id, type, crypto_type, details)
		VALUES ($1, $2, $3, $4) ON CONFLICT (user_id, type, crypto_type, details) DO NOTHING`
	insertTransactionSQL = `INSERT INTO transactions (id, user_id, kind, method, currency, amount)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING RETURNING created_at`
	selectTransactionSQL = `SELECT id, user_id, kind, method, currency, amount, created_at
		FROM transactions WHERE id = $1 AND user_id = $2`
	selectTransactionsSQL = `SELECT id, user_id, kind, method, currency, amount, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at, id`
)

func (p *Postgres) GetUser(ctx context.Context, userID int64) (model.User, error) {
	var row userRow
	if err := p.db.GetContext(ctx, &row, selectUserSQL, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, persistErr("get user", err)
	}
	var methods []model.PaymentMethod
	if err := p.db.SelectContext(ctx, &methods, selectMethodsSQL, userID); err != nil {
		return model.User{}, persistErr("get methods", err)
	}
	return model.User{
		ID:        row.UserID,
		Balance:   row.Balance,
		Methods:   methods,
		Session:   row.Session,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (p *Postgres) CreateUserIfAbsent(ctx context.Context, userID int64) (model.User, bool, error) {
	res, err := p.db.ExecContext(ctx, insertUserSQL, userID)
	if err != nil {
		return model.User{}, false, persistErr("create user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.User{}, false, persistErr("create user", err)
	}
	u, err := p.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, false, err
	}
	return u, n > 0, nil
}

func (p *Postgres) UpdateUser(ctx context.Context, userID int64, upd UserUpdate) (err error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err = tx.GetContext(ctx, &exists, `SELECT 1 FROM users WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return persistErr("lock user", err)
	}

	if upd.Balance != nil {
		if _, err = tx.ExecContext(ctx,
			`UPDATE users SET balance = $2, updated_at = NOW() WHERE user_id = $1`,
			userID, *upd.Balance); err != nil {
			return persistErr("update balance", err)
		}
	}
	switch {
	case upd.ClearSession:
		if _, err = tx.ExecContext(ctx,
			`UPDATE users SET session = NULL, updated_at = NOW() WHERE user_id = $1`, userID); err != nil {
			return persistErr("clear session", err)
		}
	case len(upd.Session) > 0:
		// lib/pq sends []byte as bytea, so JSONB goes over as text.
		if _, err = tx.ExecContext(ctx,
			`UPDATE users SET session = $2::jsonb, updated_at = NOW() WHERE user_id = $1`,
			userID, string(upd.Session)); err != nil {
			return persistErr("save session", err)
		}
	}
	for _, m := range upd.PushMethods {
		m = m.Normalize()
		if _, err = tx.ExecContext(ctx, insertMethodSQL, userID, m.Type, m.Crypto, m.Details); err != nil {
			return persistErr("push method", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return persistErr("commit", err)
	}
	return nil
}

func (p *Postgres) AddTransaction(ctx context.Context, in model.NewTransaction) (model.Transaction, error) {
	if err := ValidateTransaction(in); err != nil {
		return model.Transaction{}, err
	}
	in = normalizeTransaction(in)
	tx := model.Transaction{
		ID:       in.ID,
		UserID:   in.UserID,
		Kind:     in.Kind,
		Method:   in.Method,
		Currency: in.Currency,
		Amount:   in.Amount,
	}
	tx.GenerateID()

	err := p.db.QueryRowxContext(ctx, insertTransactionSQL,
		tx.ID, tx.UserID, tx.Kind, tx.Method, tx.Currency, tx.Amount,
	).Scan(&tx.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Same id already stored: return the existing entry.
		var existing model.Transaction
		if err := p.db.GetContext(ctx, &existing, selectTransactionSQL, tx.ID, tx.UserID); err != nil {
			return model.Transaction{}, persistErr("get transaction", err)
		}
		return existing, nil
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return model.Transaction{}, ErrNotFound
		}
		return model.Transaction{}, persistErr("add transaction", err)
	}
	return tx, nil
}

func (p *Postgres) GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	var txs []model.Transaction
	if err := p.db.SelectContext(ctx, &txs, selectTransactionsSQL, userID); err != nil {
		return nil, persistErr("get transactions", err)
	}
	return txs, nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
