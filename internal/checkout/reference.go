package checkout

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// DefaultNoteSuffix follows the reference code in the transfer note
const DefaultNoteSuffix = "thanh toan don hang"

// NewReferenceCode returns a short code the shopper puts at the start of the transfer note
func NewReferenceCode() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "DH" + strings.ToUpper(id[:8])
}

// NewPaymentNote builds the transfer note "<code> <suffix>"
func NewPaymentNote(code, suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return code
	}
	return code + " " + suffix
}

// ReferenceToken is the first whitespace-delimited word of note, lower-cased.
// An empty note yields an empty token.
func ReferenceToken(note string) string {
	fields := strings.Fields(note)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// BankAccount is the receiving account shown on the transfer QR
type BankAccount struct {
	BankID      string
	AccountNo   string
	AccountName string
}

const qrImageBase = "https://img.vietqr.io/image"

// QRImageURL renders the transfer QR image URL for amount and note
func QRImageURL(acct BankAccount, amount int64, note string) string {
	q := url.Values{}
	q.Set("amount", fmt.Sprintf("%d", amount))
	q.Set("addInfo", note)
	if acct.AccountName != "" {
		q.Set("accountName", acct.AccountName)
	}
	return fmt.Sprintf("%s/%s-%s-compact2.png?%s", qrImageBase, acct.BankID, acct.AccountNo, q.Encode())
}
