package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, IsRetryable(&mysql.MySQLError{Number: errDeadlock}))
	assert.True(t, IsRetryable(fmt.Errorf("confirm: %w", &mysql.MySQLError{Number: errLockWaitTimeout})))
	assert.False(t, IsRetryable(&mysql.MySQLError{Number: errDupEntry}))
	assert.False(t, IsRetryable(errors.New("connection refused")))
	assert.False(t, IsRetryable(nil))
}

func TestDuplicateKey(t *testing.T) {
	t.Parallel()
	tests := []struct{ msg, want string }{
		{"Duplicate entry 'a@b.c' for key 'retrieval_codes.uq_retrieval_codes_email'", "uq_retrieval_codes_email"},
		{"Duplicate entry '123456' for key 'uq_retrieval_codes_code'", "uq_retrieval_codes_code"},
		{"something else", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, duplicateKey(&mysql.MySQLError{Number: errDupEntry, Message: tt.msg}), tt.msg)
	}
	assert.Empty(t, duplicateKey(errors.New("plain")))
}
