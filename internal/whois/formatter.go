// Package whois serves the plain-text lookup protocol on port 43: one query
// line in, one formatted block out, connection closed.
package whois

import (
	"fmt"
	"strings"
	"time"

	"tshreg/internal/domain"
)

const registryName = "TSH Registry Services"

// FormatDomain renders the RIPE-style block for one domain record.
func FormatDomain(d *domain.Domain, now time.Time) string {
	var b strings.Builder

	b.WriteString("% TSH WHOIS server\n")
	b.WriteString("% for more information on TSH, visit https://nic.tsh\n")
	b.WriteString("% This query returned 1 object\n\n")

	fmt.Fprintf(&b, "domain:       %s\n", strings.ToLower(d.Name))
	fmt.Fprintf(&b, "organisation: %s\n", registryName)
	fmt.Fprintf(&b, "registrar:    %s\n", d.Registrar)
	fmt.Fprintf(&b, "status:       %s\n", strings.ToUpper(string(d.Status)))
	fmt.Fprintf(&b, "created:      %s\n", formatDate(&d.CreatedAt))
	fmt.Fprintf(&b, "changed:      %s\n", formatDate(d.UpdatedAt))
	fmt.Fprintf(&b, "expires:      %s\n\n", formatDate(d.ExpiryDate))

	b.WriteString("dnssec:       unsigned\n\n")
	b.WriteString("whois:        whois.nic.tsh\n")
	b.WriteString("source:       TSH\n\n")

	fmt.Fprintf(&b, ">>> Last update of WHOIS database: %s <<<\n", now.UTC().Format(time.RFC3339))
	return b.String()
}

// FormatRegistrar renders a registrar block with its domain portfolio.
func FormatRegistrar(r *domain.Registrar, domains []domain.Domain) string {
	var b strings.Builder

	fmt.Fprintf(&b, "registrar:      %s\n", r.ID)
	fmt.Fprintf(&b, "organisation:   TSH Registry Accredited Registrar\n")
	fmt.Fprintf(&b, "credits:        %d\n", r.Credits)

	if len(domains) > 0 {
		fmt.Fprintf(&b, "\ndomains:        %d\n", len(domains))
		for _, d := range domains {
			fmt.Fprintf(&b, "    %s (%s)\n", strings.ToLower(d.Name), d.Status)
		}
	}

	b.WriteString("\nsource:         TSH\n")
	return b.String()
}

// FormatHelp lists the supported query forms.
func FormatHelp() string {
	return strings.Join([]string{
		"Available WHOIS commands:",
		"  <domain>            look up a domain record",
		"  registrar <id>      look up a registrar and its domains",
		"  help                show this message",
		"",
	}, "\n")
}

// FormatNoMatch is the answer for a name with no record.
func FormatNoMatch(query string) string {
	return fmt.Sprintf("ERROR: No match for domain %q\n", query)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "not available"
	}
	return t.UTC().Format(time.RFC3339)
}
