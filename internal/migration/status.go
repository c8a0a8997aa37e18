package migration

import (
	"strconv"
	"strings"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
)

// DeriveStatus applies the certificate status cascade. Each rule overrides the
// ones before it, so a blocked certificate is blocked even when cancelled.
func DeriveStatus(rec *legacy.CertificateRecord) string {
	status := entities.CertificateStatusActive
	if rec.RenewalCount > 0 {
		status = entities.CertificateStatusRenewed
	}
	if rec.SerialNo == nil || *rec.SerialNo == 0 {
		status = entities.CertificateStatusNullified
	}
	if legacy.UnixTime(rec.DateCancellation) != nil {
		status = entities.CertificateStatusCancelled
	}
	if rec.Activstate == 0 {
		status = entities.CertificateStatusBlocked
	}
	return status
}

// ParseSpeed reads the speed limit from the legacy free text, e.g. "80 km/h".
// Every ASCII digit counts, so "1,200" is 1200. Text without digits yields 0.
func ParseSpeed(s string) int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
