package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/service"
	"github.com/iliyamo/event-seat-reservation/internal/utils"
)

func TestAdminAuth(t *testing.T) {
	t.Parallel()
	hash, err := utils.HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	clk := clock.NewManual(baseTime)
	auth := service.NewAdminAuth(hash, "signing-key", 30*time.Minute, clk)

	assert.True(t, auth.CheckPassword("s3cret"))
	assert.False(t, auth.CheckPassword("wrong"))
	assert.False(t, auth.CheckPassword(""))

	_, err = auth.Login("wrong")
	require.ErrorIs(t, err, service.ErrUnauthorized)

	tok, err := auth.Login("s3cret")
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(30*time.Minute), tok.Exp)
	assert.True(t, auth.CheckToken(tok.Token))
	assert.False(t, auth.CheckToken(tok.Token+"x"))

	other := service.NewAdminAuth(hash, "another-key", 30*time.Minute, clk)
	assert.False(t, other.CheckToken(tok.Token))

	clk.Advance(31 * time.Minute)
	assert.False(t, auth.CheckToken(tok.Token), "expired token")

	noTokens := service.NewAdminAuth(hash, "", 0, clk)
	_, err = noTokens.Login("s3cret")
	require.ErrorIs(t, err, service.ErrPrecondition)
	assert.False(t, noTokens.CheckToken(tok.Token))
}
