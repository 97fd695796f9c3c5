package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/model"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
)

// Codes are six digits without a leading zero.
const (
	codeMin  = 100000
	codeSpan = 900000
)

// CodeIssuer hands out one stable retrieval code per email.
type CodeIssuer struct {
	codes       RetrievalCodeRepository
	clock       clock.Clock
	generate    func() (string, error)
	maxAttempts int
}

// NewCodeIssuer returns a CodeIssuer backed by codes.
func NewCodeIssuer(codes RetrievalCodeRepository, clk clock.Clock, opts ...Option) *CodeIssuer {
	o := buildOptions(opts)
	return &CodeIssuer{codes: codes, clock: clk, generate: o.codeGenerator, maxAttempts: o.maxCodeAttempts}
}

// Resolve returns the code of email, creating one when the email has none.
// isNew is true only when this call created it.  Each attempt inserts
// against the unique indexes; a taken code is retried and a concurrent
// first booking by the same email yields that booking's code.  Resolve is
// meant to run inside the caller's transaction.
func (i *CodeIssuer) Resolve(ctx context.Context, email string) (code string, isNew bool, err error) {
	existing, err := i.codes.FindByEmail(ctx, email)
	if err == nil {
		return existing.Code, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", false, storageError("look up retrieval code", err)
	}

	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		candidate, err := i.generate()
		if err != nil {
			return "", false, storageError("generate retrieval code", err)
		}
		err = i.codes.Insert(ctx, model.RetrievalCode{Email: email, Code: candidate, CreatedAt: i.clock.Now()})
		switch {
		case err == nil:
			return candidate, true, nil
		case errors.Is(err, repository.ErrDuplicateCode):
			continue
		case errors.Is(err, repository.ErrDuplicateEmail):
			winner, err := i.codes.FindByEmail(ctx, email)
			if err != nil {
				return "", false, storageError("look up retrieval code", err)
			}
			return winner.Code, false, nil
		default:
			return "", false, storageError("store retrieval code", err)
		}
	}
	return "", false, newError(ErrResourceExhausted, CodeCodeSpaceExhausted,
		"could not allocate a retrieval code after %d attempts, please try again", i.maxAttempts)
}

// ValidCode reports whether s has the shape of a retrieval code: exactly six
// ASCII digits.
func ValidCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}
