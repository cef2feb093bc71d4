// Package format builds invoice numbers.
package format

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageInvoiceNumber is the number given to generated usage invoices:
// INV-<issue timestamp>-<customer id>-<period start day>.
//
// This function is PURE:
// - No side effects
// - No DB access
// - Fully deterministic
//
// The assembler leans on that to retry with a shifted issue timestamp
// when a candidate number is already taken.
func UsageInvoiceNumber(issuedAt time.Time, customerID snowflake.ID, periodStart time.Time) string {
	return fmt.Sprintf("INV-%s-%d-%s",
		issuedAt.UTC().Format("20060102150405"),
		customerID,
		periodStart.UTC().Format("20060102"))
}

// ManualInvoiceNumber is the number given to invoices created through
// the API without one: INV-<issue day>-<customer id>-<unix seconds>.
func ManualInvoiceNumber(issueDate time.Time, customerID snowflake.ID, now time.Time) string {
	return fmt.Sprintf("INV-%s-%d-%d",
		issueDate.UTC().Format("20060102"),
		customerID,
		now.UTC().Unix())
}
