package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
)

func TestOtpIssue(t *testing.T) {
	issuer := NewOtpIssuer(15*time.Minute, 5)

	otp := issuer.Issue()
	require.Len(t, otp.Code, 4)
	for _, c := range otp.Code {
		assert.True(t, c >= '0' && c <= '9', "code must be numeric, got %q", otp.Code)
	}
	assert.Zero(t, otp.Attempts)
	assert.Nil(t, otp.VerifiedAt)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), otp.ExpiresAt, time.Second)
}

func TestOtpVerify(t *testing.T) {
	issuer := NewOtpIssuer(15*time.Minute, 3)
	future := time.Now().Add(time.Minute)

	reason := func(err error) string {
		var pe *domain.PreconditionError
		require.ErrorAs(t, err, &pe)
		return pe.Reason
	}

	t.Run("match", func(t *testing.T) {
		otp := &domain.DeliveryOtp{Code: "1234", ExpiresAt: future}
		assert.NoError(t, issuer.Verify(otp, "1234"))
		assert.Zero(t, otp.Attempts, "a correct code burns no attempt")
	})

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, domain.ReasonOtpMissing, reason(issuer.Verify(nil, "1234")))
		assert.Equal(t, domain.ReasonOtpMissing, reason(issuer.Verify(&domain.DeliveryOtp{}, "1234")))
	})

	t.Run("wrong increments", func(t *testing.T) {
		otp := &domain.DeliveryOtp{Code: "1234", ExpiresAt: future}
		assert.Equal(t, domain.ReasonOtpWrong, reason(issuer.Verify(otp, "0000")))
		assert.Equal(t, 1, otp.Attempts)
	})

	t.Run("expired increments", func(t *testing.T) {
		otp := &domain.DeliveryOtp{Code: "1234", ExpiresAt: time.Now().Add(-time.Second)}
		assert.Equal(t, domain.ReasonOtpExpired, reason(issuer.Verify(otp, "1234")))
		assert.Equal(t, 1, otp.Attempts)
	})

	t.Run("locked at ceiling", func(t *testing.T) {
		otp := &domain.DeliveryOtp{Code: "1234", ExpiresAt: future, Attempts: 3}
		assert.Equal(t, domain.ReasonOtpLocked, reason(issuer.Verify(otp, "1234")))
		assert.Equal(t, 3, otp.Attempts, "locked checks burn nothing further")
	})

	t.Run("consumed", func(t *testing.T) {
		at := time.Now()
		otp := &domain.DeliveryOtp{Code: "1234", ExpiresAt: future, VerifiedAt: &at}
		assert.Equal(t, domain.ReasonOtpConsumed, reason(issuer.Verify(otp, "1234")))
	})
}
