// Package repository implements MySQL persistence for seats, holds,
// bookings, retrieval codes and the event configuration.  The sentinel
// values below let the service layer tell storage outcomes apart without
// looking at driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrDuplicateCode is returned when a retrieval code is already taken by
// another email.
var ErrDuplicateCode = errors.New("duplicate retrieval code")

// ErrDuplicateEmail is returned when an email already owns a retrieval code.
var ErrDuplicateEmail = errors.New("duplicate retrieval email")

const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool {
	return mysqlErrNumber(err) == errDupEntry
}

// duplicateKey reports the index named in a 1062 message, e.g.
// "Duplicate entry 'x' for key 'retrieval_codes.uq_retrieval_codes_email'".
func duplicateKey(err error) string {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return ""
	}
	i := strings.LastIndex(me.Message, "for key '")
	if i < 0 {
		return ""
	}
	key := strings.TrimSuffix(me.Message[i+len("for key '"):], "'")
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key
}

// IsRetryable reports whether err is a deadlock or lock wait timeout, after
// which the whole transaction can be run again.
func IsRetryable(err error) bool {
	n := mysqlErrNumber(err)
	return n == errDeadlock || n == errLockWaitTimeout
}
