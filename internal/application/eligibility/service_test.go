package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeLookup struct {
	record *DomainRecord
	err    error
}

func (f *fakeLookup) Lookup(ctx context.Context, domain string) (*DomainRecord, error) {
	return f.record, f.err
}

func testPolicy() Policy {
	return DefaultPolicy([]string{"com", "net", "org", "io", "co"})
}

func TestCheck_EligibleDomain(t *testing.T) {
	now := time.Now()
	svc := &Service{
		Lookup: &fakeLookup{record: &DomainRecord{
			RegistrationDate: now.AddDate(0, -30, 0),
			ExpirationDate:   now.AddDate(0, 6, 0),
			Registrar:        "Example Registrar",
			AgeInMonths:      30,
		}},
		Policy: testPolicy(),
	}
	res := svc.Check(context.Background(), "example.com")
	assert.True(t, res.Eligible)
	assert.Empty(t, res.Reason)
	assert.NotNil(t, res.Record)
	assert.Equal(t, 30, res.Record.AgeInMonths)
}

func TestCheck_TooYoung(t *testing.T) {
	now := time.Now()
	svc := &Service{
		Lookup: &fakeLookup{record: &DomainRecord{
			RegistrationDate: now.AddDate(0, -18, 0),
			ExpirationDate:   now.AddDate(0, 6, 0),
			AgeInMonths:      18,
		}},
		Policy: testPolicy(),
	}
	res := svc.Check(context.Background(), "young.com")
	assert.False(t, res.Eligible)
	assert.Contains(t, res.Reason, "24 months")
}

func TestCheck_ExpiresTooFarOut(t *testing.T) {
	now := time.Now()
	svc := &Service{
		Lookup: &fakeLookup{record: &DomainRecord{
			RegistrationDate: now.AddDate(-5, 0, 0),
			ExpirationDate:   now.AddDate(2, 0, 0),
			AgeInMonths:      60,
		}},
		Policy: testPolicy(),
	}
	res := svc.Check(context.Background(), "longlived.com")
	assert.False(t, res.Eligible)
	assert.Contains(t, res.Reason, "12 months")
}

func TestCheck_AlreadyExpired(t *testing.T) {
	now := time.Now()
	svc := &Service{
		Lookup: &fakeLookup{record: &DomainRecord{
			RegistrationDate: now.AddDate(-5, 0, 0),
			ExpirationDate:   now.AddDate(0, 0, -1),
			AgeInMonths:      60,
		}},
		Policy: testPolicy(),
	}
	res := svc.Check(context.Background(), "gone.com")
	assert.False(t, res.Eligible)
}

func TestCheck_UnsupportedTLD(t *testing.T) {
	svc := &Service{
		Lookup: &fakeLookup{record: &DomainRecord{}},
		Policy: testPolicy(),
	}
	res := svc.Check(context.Background(), "example.xyz")
	assert.False(t, res.Eligible)
	assert.Contains(t, res.Reason, "TLD")
}

func TestCheck_NoRegistryData(t *testing.T) {
	svc := &Service{
		Lookup: &fakeLookup{record: nil},
		Policy: testPolicy(),
	}
	res := svc.Check(context.Background(), "unknown.com")
	assert.False(t, res.Eligible)
}

func TestCheck_LookupFailure(t *testing.T) {
	svc := &Service{
		Lookup: &fakeLookup{err: errors.New("rdap timeout")},
		Policy: testPolicy(),
	}
	res := svc.Check(context.Background(), "flaky.com")
	assert.False(t, res.Eligible)
	assert.NotEmpty(t, res.Reason)
}

func TestAgeInMonths(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 24, AgeInMonths(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 23, AgeInMonths(time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 0, AgeInMonths(time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), now))
}
