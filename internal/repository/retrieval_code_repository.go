package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/event-seat-reservation/internal/model"
)

type retrievalCodeRecord struct {
	Email     string    `db:"email"`
	Code      string    `db:"code"`
	CreatedAt time.Time `db:"created_at"`
}

// RetrievalCodeRepo stores one code per email.  Both email and code carry
// unique indexes; Insert reports which of them rejected the row.
type RetrievalCodeRepo struct {
	db *sqlx.DB
}

// NewRetrievalCodeRepo returns a RetrievalCodeRepo bound to db.
func NewRetrievalCodeRepo(db *sqlx.DB) *RetrievalCodeRepo { return &RetrievalCodeRepo{db: db} }

// FindByEmail returns the code of email or ErrNotFound.
func (r *RetrievalCodeRepo) FindByEmail(ctx context.Context, email string) (model.RetrievalCode, error) {
	var rec retrievalCodeRecord
	err := sqlx.GetContext(ctx, conn(ctx, r.db), &rec, `SELECT email, code, created_at FROM retrieval_codes WHERE email = ?`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RetrievalCode{}, ErrNotFound
		}
		return model.RetrievalCode{}, err
	}
	return model.RetrievalCode{Email: rec.Email, Code: rec.Code, CreatedAt: rec.CreatedAt.UTC()}, nil
}

// Insert stores rc.  A clash on the email index yields ErrDuplicateEmail and
// a clash on the code index ErrDuplicateCode.  A failed INSERT only rolls
// back its own statement, so the caller can retry inside the same
// transaction.
func (r *RetrievalCodeRepo) Insert(ctx context.Context, rc model.RetrievalCode) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO retrieval_codes (email, code, created_at) VALUES (?, ?, ?)`,
		rc.Email, rc.Code, rc.CreatedAt.UTC())
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		if duplicateKey(err) == "uq_retrieval_codes_email" {
			return ErrDuplicateEmail
		}
		return ErrDuplicateCode
	}
	return err
}
