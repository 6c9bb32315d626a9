package eligibility

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RDAPClient looks up domain registration metadata via an RDAP bootstrap
// service (rdap.org by default, which redirects to the registry's server).
type RDAPClient struct {
	BaseURL string
	Client  *http.Client
}

type rdapResponse struct {
	Events []struct {
		EventAction string `json:"eventAction"`
		EventDate   string `json:"eventDate"`
	} `json:"events"`
	Entities []struct {
		Roles      []string        `json:"roles"`
		VcardArray json.RawMessage `json:"vcardArray"`
	} `json:"entities"`
}

// Lookup fetches and projects the RDAP record. A 404 (unregistered or
// unsupported TLD) returns (nil, nil) so callers get a deterministic
// "no data" rather than an error.
func (r *RDAPClient) Lookup(ctx context.Context, domain string) (*DomainRecord, error) {
	if r.Client == nil {
		r.Client = &http.Client{Timeout: 10 * time.Second}
	}
	base := r.BaseURL
	if base == "" {
		base = "https://rdap.org"
	}

	reqURL := strings.TrimSuffix(base, "/") + "/domain/" + url.PathEscape(strings.ToLower(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rdap lookup failed: status %d", resp.StatusCode)
	}

	var body rdapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	rec := &DomainRecord{Registrar: registrarName(body)}
	for _, ev := range body.Events {
		ts, err := time.Parse(time.RFC3339, ev.EventDate)
		if err != nil {
			continue
		}
		switch ev.EventAction {
		case "registration":
			rec.RegistrationDate = ts
		case "expiration":
			rec.ExpirationDate = ts
		}
	}
	if rec.RegistrationDate.IsZero() || rec.ExpirationDate.IsZero() {
		return nil, nil
	}
	rec.AgeInMonths = AgeInMonths(rec.RegistrationDate, time.Now())
	return rec, nil
}

// registrarName digs the registrar's display name out of the jCard blob.
// jCard: ["vcard", [["fn", {}, "text", "Example Registrar Inc."], ...]]
func registrarName(body rdapResponse) string {
	for _, ent := range body.Entities {
		if !hasRole(ent.Roles, "registrar") {
			continue
		}
		var card []json.RawMessage
		if err := json.Unmarshal(ent.VcardArray, &card); err != nil || len(card) < 2 {
			continue
		}
		var props [][]interface{}
		if err := json.Unmarshal(card[1], &props); err != nil {
			continue
		}
		for _, p := range props {
			if len(p) >= 4 {
				if name, ok := p[0].(string); ok && name == "fn" {
					if v, ok := p[3].(string); ok && v != "" {
						return v
					}
				}
			}
		}
	}
	return ""
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
