package eligibility

import (
	"context"
	"fmt"
	"time"

	"lapsly-backend/internal/pkg/validation"

	"github.com/rs/zerolog/log"
)

// DomainRecord is the registry metadata snapshot for one domain.
type DomainRecord struct {
	RegistrationDate time.Time `json:"registrationDate"`
	ExpirationDate   time.Time `json:"expirationDate"`
	Registrar        string    `json:"registrar"`
	AgeInMonths      int       `json:"ageInMonths"`
}

// DomainLookup abstracts the external registry lookup (RDAP in production).
// A nil record with nil error means "no data" (e.g. unsupported TLD).
type DomainLookup interface {
	Lookup(ctx context.Context, domain string) (*DomainRecord, error)
}

// Policy is the immutable eligibility policy, injected at construction so
// tests can substitute values.
type Policy struct {
	MinAgeMonths    int
	MaxExpiryWithin time.Duration
	SupportedTLDs   []string
}

// DefaultPolicy returns the production policy for the given TLD set.
func DefaultPolicy(tlds []string) Policy {
	return Policy{
		MinAgeMonths:    24,
		MaxExpiryWithin: 365 * 24 * time.Hour,
		SupportedTLDs:   tlds,
	}
}

// Result is the outcome of an eligibility check. Reason is always set when
// Eligible is false and is safe to surface to the submitter.
type Result struct {
	Eligible bool          `json:"eligible"`
	Reason   string        `json:"reason,omitempty"`
	Record   *DomainRecord `json:"record,omitempty"`
}

type Service struct {
	Lookup DomainLookup
	Policy Policy
}

// Check validates a candidate domain against the policy. Lookup failures
// yield an ineligible result with a distinguishing reason, never an error:
// callers surface the reason, they do not retry.
func (s *Service) Check(ctx context.Context, domainName string) Result {
	tld := validation.TLD(domainName)
	if !s.supportedTLD(tld) {
		return Result{Eligible: false, Reason: fmt.Sprintf("Unsupported TLD: .%s", tld)}
	}

	rec, err := s.Lookup.Lookup(ctx, domainName)
	if err != nil {
		log.Warn().Err(err).Str("domain", domainName).Msg("Domain eligibility lookup failed")
		return Result{Eligible: false, Reason: "Domain lookup failed, try again later"}
	}
	if rec == nil {
		return Result{Eligible: false, Reason: "No registration data found for domain"}
	}

	if rec.AgeInMonths < s.Policy.MinAgeMonths {
		return Result{
			Eligible: false,
			Reason:   fmt.Sprintf("Domain must be registered for at least %d months (currently %d)", s.Policy.MinAgeMonths, rec.AgeInMonths),
			Record:   rec,
		}
	}

	now := time.Now()
	if !rec.ExpirationDate.After(now) {
		return Result{Eligible: false, Reason: "Domain registration has already expired", Record: rec}
	}
	if rec.ExpirationDate.After(now.Add(s.Policy.MaxExpiryWithin)) {
		return Result{
			Eligible: false,
			Reason:   "Domain registration must expire within the next 12 months",
			Record:   rec,
		}
	}

	return Result{Eligible: true, Record: rec}
}

func (s *Service) supportedTLD(tld string) bool {
	if tld == "" {
		return false
	}
	for _, t := range s.Policy.SupportedTLDs {
		if t == tld {
			return true
		}
	}
	return false
}

// AgeInMonths computes whole months elapsed between registration and now.
func AgeInMonths(registered, now time.Time) int {
	if registered.IsZero() || registered.After(now) {
		return 0
	}
	months := (now.Year()-registered.Year())*12 + int(now.Month()) - int(registered.Month())
	if now.Day() < registered.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
