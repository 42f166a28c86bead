// Package qr builds bank-transfer QR image URLs. The image itself is
// rendered by an external provider (qr.sepay.vn style); we only assemble
// the query. A banking app scanning the image gets a prefilled transfer:
// beneficiary account, bank code, and the reference memo as the
// description.
package qr

import (
	"net/url"
	"strings"

	"donate-app/internal/refcode"
)

// Builder holds the beneficiary details every donation QR shares.
type Builder struct {
	BaseURL  string // e.g. https://qr.sepay.vn
	Account  string // beneficiary account number
	Bank     string // bank identifier, e.g. MBBank
	Template string // provider render template, e.g. compact
}

// ImageURL returns the QR image URL for a memo code. The memo is
// normalized with the same projection used at code generation time and
// then percent-encoded, so the bytes the bank sees in the transfer
// description are exactly the bytes reconciliation will search for.
// Truncation, if any, happens here — before encoding — never at the
// provider.
func (b *Builder) ImageURL(memo string) string {
	memo = refcode.Normalize(memo)
	if len(memo) > refcode.MemoMaxLen {
		memo = memo[:refcode.MemoMaxLen]
	}

	q := url.Values{}
	q.Set("acc", b.Account)
	q.Set("bank", b.Bank)
	q.Set("des", memo)
	q.Set("template", b.Template)
	q.Set("download", "false")

	return strings.TrimRight(b.BaseURL, "/") + "/img?" + q.Encode()
}
