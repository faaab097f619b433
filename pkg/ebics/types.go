// Package ebics implements the EBICS H004 request/response schema and the
// builders for the single-phase order exchanges used by the gateway.
package ebics

import (
	"encoding/base64"
	"encoding/xml"
	"log/slog"
	"time"
)

// Namespace and protocol constants
const (
	NsEbics = "urn:org:ebics:H004"

	ProtocolVersion  = "H004"
	ProtocolRevision = "1"

	// ReturnCodeOK is the six-digit EBICS success code.
	ReturnCodeOK = "000000"

	// PhaseInitialisation is the only transaction phase this client uses;
	// multi-segment Transfer continuation is not implemented.
	PhaseInitialisation = "Initialisation"

	// OrderTypeHKD downloads the bank's public keys (connectivity test).
	OrderTypeHKD = "HKD"
	// OrderTypeHTD downloads transaction data (statements).
	OrderTypeHTD = "HTD"

	// OrderAttributeDZHNN marks a download order without electronic signature.
	OrderAttributeDZHNN = "DZHNN"

	// SecurityMediumNone means no external security medium is involved.
	SecurityMediumNone = "0000"
)

// ConnectionStatus describes the health of a bank connection.
type ConnectionStatus string

const (
	StatusInactive ConnectionStatus = "INACTIVE"
	StatusActive   ConnectionStatus = "ACTIVE"
	StatusError    ConnectionStatus = "ERROR"
)

// Connection describes an EBICS subscriber relationship with a bank.
// It is read-only input to the protocol client; persistence lives in the
// storage layer.
type Connection struct {
	HostID        string
	PartnerID     string
	UserID        string
	BankURL       string
	Version       string
	Status        ConnectionStatus
	LastConnected time.Time
}

// Request is an EBICS H004 ebicsRequest document.
type Request struct {
	XMLName  xml.Name `xml:"urn:org:ebics:H004 ebicsRequest"`
	Version  string   `xml:"Version,attr"`
	Revision string   `xml:"Revision,attr"`
	Header   Header   `xml:"header"`
	Body     Body     `xml:"body"`
}

// Header carries the static and mutable request sub-headers.
type Header struct {
	Authenticate bool          `xml:"authenticate,attr"`
	Static       StaticHeader  `xml:"static"`
	Mutable      MutableHeader `xml:"mutable"`
}

// StaticHeader identifies the subscriber and the order.
type StaticHeader struct {
	HostID         string        `xml:"HostID"`
	PartnerID      string        `xml:"PartnerID"`
	UserID         string        `xml:"UserID"`
	Product        *Product      `xml:"Product,omitempty"`
	OrderDetails   *OrderDetails `xml:"OrderDetails,omitempty"`
	SecurityMedium string        `xml:"SecurityMedium"`
}

// Product describes the client software submitting the order.
type Product struct {
	Language string `xml:"Language,attr"`
	Name     string `xml:",chardata"`
}

// OrderDetails names the order type and its parameters.
type OrderDetails struct {
	OrderType           string               `xml:"OrderType"`
	OrderAttribute      string               `xml:"OrderAttribute"`
	StandardOrderParams *StandardOrderParams `xml:"StandardOrderParams,omitempty"`
}

// StandardOrderParams carries the optional date range of a download order.
type StandardOrderParams struct {
	DateRange *DateRange `xml:"DateRange,omitempty"`
}

// DateRange bounds a download order, dates in ISO-8601 (yyyy-mm-dd).
type DateRange struct {
	Start string `xml:"Start"`
	End   string `xml:"End"`
}

// MutableHeader carries the transaction phase and segment position.
type MutableHeader struct {
	TransactionPhase string        `xml:"TransactionPhase"`
	SegmentNumber    SegmentNumber `xml:"SegmentNumber"`
}

// SegmentNumber marks the position within a segmented transfer.
type SegmentNumber struct {
	LastSegment bool `xml:"lastSegment,attr"`
	Value       int  `xml:",chardata"`
}

// Body optionally carries upload order data.
type Body struct {
	DataTransfer *DataTransfer `xml:"DataTransfer,omitempty"`
}

// DataTransfer wraps base64-encoded order data.
type DataTransfer struct {
	OrderData string `xml:"OrderData,omitempty"`
}

// Response is an EBICS H004 ebicsResponse document. It mirrors the request
// shape and adds return code and report text at both header-mutable and
// body level.
type Response struct {
	XMLName  xml.Name        `xml:"urn:org:ebics:H004 ebicsResponse"`
	Version  string          `xml:"Version,attr"`
	Revision string          `xml:"Revision,attr"`
	Header   *ResponseHeader `xml:"header"`
	Body     *ResponseBody   `xml:"body"`
}

// ResponseHeader carries the response sub-headers.
type ResponseHeader struct {
	Authenticate bool                   `xml:"authenticate,attr"`
	Static       *ResponseStaticHeader  `xml:"static"`
	Mutable      *ResponseMutableHeader `xml:"mutable"`
}

// ResponseStaticHeader carries the bank-assigned transaction identity.
type ResponseStaticHeader struct {
	TransactionPhase string `xml:"TransactionPhase"`
	TransactionID    string `xml:"TransactionID"`
	NumSegments      int    `xml:"NumSegments"`
}

// ResponseMutableHeader carries phase, segment and header-level status.
type ResponseMutableHeader struct {
	TransactionPhase string         `xml:"TransactionPhase"`
	SegmentNumber    *SegmentNumber `xml:"SegmentNumber"`
	ReturnCode       string         `xml:"ReturnCode"`
	ReportText       string         `xml:"ReportText"`
}

// ResponseBody carries the body-level status and the downloaded order data.
type ResponseBody struct {
	ReturnCode   string                `xml:"ReturnCode"`
	ReportText   string                `xml:"ReportText"`
	DataTransfer *ResponseDataTransfer `xml:"DataTransfer"`
}

// ResponseDataTransfer wraps the downloaded order data and its encryption
// metadata.
type ResponseDataTransfer struct {
	DataEncryptionInfo *DataEncryptionInfo `xml:"DataEncryptionInfo"`
	OrderData          string              `xml:"OrderData"`
}

// DataEncryptionInfo describes how the order data was encrypted by the bank.
// Decryption is out of scope for this client; the block is parsed so that
// callers can inspect it.
type DataEncryptionInfo struct {
	Authenticate           bool          `xml:"authenticate,attr"`
	EncryptionPubKeyDigest *PubKeyDigest `xml:"EncryptionPubKeyDigest"`
	TransactionKey         string        `xml:"TransactionKey"`
}

// PubKeyDigest references a bank public key by digest.
type PubKeyDigest struct {
	Version   string `xml:"Version,attr"`
	Algorithm string `xml:"Algorithm,attr"`
	Digest    string `xml:",chardata"`
}

// IsSuccess reports whether the response indicates success. Banks are not
// consistent about which field they populate, so the body return code is
// checked first and the header-mutable return code second.
func (r *Response) IsSuccess() bool {
	return r.bodyReturnCode() == ReturnCodeOK || r.headerReturnCode() == ReturnCodeOK
}

// ReturnCode returns the response's return code, preferring the body's
// value over the header's.
func (r *Response) ReturnCode() string {
	if code := r.bodyReturnCode(); code != "" {
		return code
	}
	return r.headerReturnCode()
}

// ErrorMessage returns the response's report text, preferring the body's
// value over the header's.
func (r *Response) ErrorMessage() string {
	if r.Body != nil && r.Body.ReportText != "" {
		return r.Body.ReportText
	}
	if r.Header != nil && r.Header.Mutable != nil && r.Header.Mutable.ReportText != "" {
		return r.Header.Mutable.ReportText
	}
	return "unknown EBICS error"
}

// HasOrderData reports whether the body carries an order data payload.
func (r *Response) HasOrderData() bool {
	return r.Body != nil && r.Body.DataTransfer != nil && r.Body.DataTransfer.OrderData != ""
}

// DecodedOrderData base64-decodes the body's order data. A decode failure
// is logged and yields nil rather than an error; the caller treats it as
// "no data".
func (r *Response) DecodedOrderData() []byte {
	if !r.HasOrderData() {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(r.Body.DataTransfer.OrderData)
	if err != nil {
		slog.Error("failed to decode EBICS order data", "error", err)
		return nil
	}
	return decoded
}

func (r *Response) bodyReturnCode() string {
	if r.Body == nil {
		return ""
	}
	return r.Body.ReturnCode
}

func (r *Response) headerReturnCode() string {
	if r.Header == nil || r.Header.Mutable == nil {
		return ""
	}
	return r.Header.Mutable.ReturnCode
}
