package app

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/domain"
)

// OtpIssuer generates and checks the short numeric codes gating the
// delivery handover.
type OtpIssuer struct {
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewOtpIssuer(ttl time.Duration, maxAttempts int) *OtpIssuer {
	return &OtpIssuer{ttl: ttl, maxAttempts: maxAttempts, now: time.Now}
}

// Issue returns a fresh 4-digit code with the configured expiry and a zeroed
// attempt counter.
func (o *OtpIssuer) Issue() domain.DeliveryOtp {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// crypto/rand failing means the process is in no state to hand out
		// codes at all.
		panic(fmt.Sprintf("otp: read random: %v", err))
	}
	return domain.DeliveryOtp{
		Code:      fmt.Sprintf("%04d", n.Int64()),
		ExpiresAt: o.now().Add(o.ttl),
	}
}

// Verify checks the supplied code against the current record. On any non-ok
// outcome the in-memory attempt counter is incremented; persisting that
// increment is the caller's job. After the attempt ceiling the record is
// locked and a re-issue is required.
func (o *OtpIssuer) Verify(otp *domain.DeliveryOtp, code string) error {
	if otp == nil || otp.Code == "" {
		return domain.Precondition(domain.ReasonOtpMissing)
	}
	if otp.Consumed() {
		return domain.Precondition(domain.ReasonOtpConsumed)
	}
	if otp.Attempts >= o.maxAttempts {
		return domain.Precondition(domain.ReasonOtpLocked)
	}
	if o.now().After(otp.ExpiresAt) {
		otp.Attempts++
		return domain.Precondition(domain.ReasonOtpExpired)
	}
	if otp.Code != code {
		otp.Attempts++
		return domain.Precondition(domain.ReasonOtpWrong)
	}
	return nil
}
