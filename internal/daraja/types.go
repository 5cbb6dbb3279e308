package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

//
// ────────────────────────────────────────────────
//   Credentials
// ────────────────────────────────────────────────
//

// Credentials are the Daraja app consumer key/secret and the API base URL
// (e.g. "https://sandbox.safaricom.co.ke").
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	BaseURL        string
}

// missing returns the names of empty fields.
func (c Credentials) missing() []string {
	var names []string
	if c.ConsumerKey == "" {
		names = append(names, "consumer key")
	}
	if c.ConsumerSecret == "" {
		names = append(names, "consumer secret")
	}
	if c.BaseURL == "" {
		names = append(names, "base url")
	}
	return names
}

// CredentialSource supplies the credentials used for each OAuth exchange.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials is a CredentialSource backed by fixed values (environment).
type StaticCredentials Credentials

// Credentials implements CredentialSource.
func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

//
// ────────────────────────────────────────────────
//   OAuth
// ────────────────────────────────────────────────
//

// TokenResponse is the body of GET /oauth/v1/generate. Daraja sends
// expires_in as a string ("3599"); FlexString accepts either form.
type TokenResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   FlexString `json:"expires_in"`
}

//
// ────────────────────────────────────────────────
//   C2B Register URL
// ────────────────────────────────────────────────
//

// DefaultResponseType tells Daraja to complete the transaction when the
// validation URL cannot be reached.
const DefaultResponseType = "Completed"

// RegistrationConfig is the deployment configuration for URL registration.
type RegistrationConfig struct {
	BaseURL         string
	ShortCode       string
	ConfirmationURL string
	ValidationURL   string
	ResponseType    string
}

// RegisterURLRequest is the payload for POST /mpesa/c2b/v1/registerurl.
type RegisterURLRequest struct {
	ShortCode       string `json:"ShortCode"`
	ResponseType    string `json:"ResponseType"`
	ConfirmationURL string `json:"ConfirmationURL"`
	ValidationURL   string `json:"ValidationURL"`
}

//
// ────────────────────────────────────────────────
//   C2B Callbacks
// ────────────────────────────────────────────────
//

// C2BTransaction is the payload Daraja posts to the validation and
// confirmation URLs. TransTime, OrgAccountBalance and the payer names are
// only populated on confirmation. Every field is a FlexString: Daraja and
// its simulators send numeric account references and ids as numbers.
type C2BTransaction struct {
	TransactionType   FlexString `json:"TransactionType"`
	TransID           FlexString `json:"TransID"`
	TransTime         FlexString `json:"TransTime"`
	TransAmount       FlexString `json:"TransAmount"`
	BusinessShortCode FlexString `json:"BusinessShortCode"`
	BillRefNumber     FlexString `json:"BillRefNumber"`
	InvoiceNumber     FlexString `json:"InvoiceNumber"`
	OrgAccountBalance FlexString `json:"OrgAccountBalance"`
	ThirdPartyTransID FlexString `json:"ThirdPartyTransID"`
	MSISDN            FlexString `json:"MSISDN"`
	FirstName         FlexString `json:"FirstName"`
	MiddleName        FlexString `json:"MiddleName"`
	LastName          FlexString `json:"LastName"`
}

// fields maps payload keys to their destinations.
func (tx *C2BTransaction) fields() map[string]*FlexString {
	return map[string]*FlexString{
		"TransactionType":   &tx.TransactionType,
		"TransID":           &tx.TransID,
		"TransTime":         &tx.TransTime,
		"TransAmount":       &tx.TransAmount,
		"BusinessShortCode": &tx.BusinessShortCode,
		"BillRefNumber":     &tx.BillRefNumber,
		"InvoiceNumber":     &tx.InvoiceNumber,
		"OrgAccountBalance": &tx.OrgAccountBalance,
		"ThirdPartyTransID": &tx.ThirdPartyTransID,
		"MSISDN":            &tx.MSISDN,
		"FirstName":         &tx.FirstName,
		"MiddleName":        &tx.MiddleName,
		"LastName":          &tx.LastName,
	}
}

// Validation result codes.
const (
	ResultAccepted       = "0"
	ResultInvalidAccount = "C2B00012"
	ResultOtherError     = "C2B00016"
	resultDescAccepted   = "Accepted"
	resultDescRejected   = "Rejected"
	resultDescConfirmed  = "Success"
	confirmationResultOK = 0
	callbackKindValidate = "validation"
	callbackKindConfirm  = "confirmation"
)

// ValidationResponse answers a validation callback. ResultCode is a string.
type ValidationResponse struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// ConfirmationResponse answers a confirmation callback. ResultCode is numeric.
type ConfirmationResponse struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// FlexString decodes a JSON string, number or boolean into its textual form.
// Null decodes to the empty string; objects and arrays are rejected.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return errors.New("flexstring: empty value")
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	case data[0] == '{' || data[0] == '[':
		return fmt.Errorf("flexstring: cannot decode %s", data[:1])
	}
	if !json.Valid(data) {
		return fmt.Errorf("flexstring: invalid value %q", data)
	}
	*f = FlexString(data)
	return nil
}

// String returns the raw text.
func (f FlexString) String() string { return string(f) }
