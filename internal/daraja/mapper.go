package daraja

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/adapters/mpesa-adapter/pkg/model"
)

// transTimeLayout is Daraja's TransTime format, e.g. "20191122063845".
const transTimeLayout = "20060102150405"

// nairobi is Daraja's timestamp zone (EAT, UTC+3, no DST).
var nairobi = time.FixedZone("EAT", 3*60*60)

// ToC2BEvent normalizes a callback payload into a C2BEvent.
// Unparseable amounts and times are left zero rather than failing the callback.
func ToC2BEvent(kind string, tx C2BTransaction, resultCode string, receivedAt time.Time) model.C2BEvent {
	return model.C2BEvent{
		Kind:              kind,
		TransID:           tx.TransID.String(),
		TransactionType:   tx.TransactionType.String(),
		TransTime:         ParseTransTime(tx.TransTime.String()),
		Amount:            ParseAmount(tx.TransAmount.String()),
		ShortCode:         tx.BusinessShortCode.String(),
		BillRefNumber:     tx.BillRefNumber.String(),
		InvoiceNumber:     tx.InvoiceNumber.String(),
		ThirdPartyTransID: tx.ThirdPartyTransID.String(),
		MSISDN:            tx.MSISDN.String(),
		FirstName:         tx.FirstName.String(),
		MiddleName:        tx.MiddleName.String(),
		LastName:          tx.LastName.String(),
		OrgAccountBalance: ParseAmount(tx.OrgAccountBalance.String()),
		ResultCode:        resultCode,
		ReceivedAt:        receivedAt.UTC(),
	}
}

// ParseAmount parses a Daraja amount ("1500.00", "1,500.00"); invalid input yields zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseTransTime parses a Daraja TransTime in EAT and returns it in UTC, or nil.
func ParseTransTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(transTimeLayout, s, nairobi)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
