package ebics

import (
	"encoding/xml"
	"fmt"
	"time"
)

// Product metadata sent in every request.
const (
	ProductName     = "EBICS DocuSign Gateway"
	ProductLanguage = "de"
)

// NewHKDRequest builds a bank-keys-download request used for connectivity
// testing. The shape is fixed: order type HKD, attribute DZHNN, security
// medium 0000, phase Initialisation.
func NewHKDRequest(conn *Connection) *Request {
	return newRequest(conn, &OrderDetails{
		OrderType:      OrderTypeHKD,
		OrderAttribute: OrderAttributeDZHNN,
	})
}

// NewHTDRequest builds a download-transaction-data request bounded by the
// given date range.
func NewHTDRequest(conn *Connection, from, to time.Time) *Request {
	return newRequest(conn, &OrderDetails{
		OrderType:      OrderTypeHTD,
		OrderAttribute: OrderAttributeDZHNN,
		StandardOrderParams: &StandardOrderParams{
			DateRange: &DateRange{
				Start: from.Format("2006-01-02"),
				End:   to.Format("2006-01-02"),
			},
		},
	})
}

func newRequest(conn *Connection, details *OrderDetails) *Request {
	return &Request{
		Version:  ProtocolVersion,
		Revision: ProtocolRevision,
		Header: Header{
			Authenticate: true,
			Static: StaticHeader{
				HostID:    conn.HostID,
				PartnerID: conn.PartnerID,
				UserID:    conn.UserID,
				Product: &Product{
					Language: ProductLanguage,
					Name:     ProductName,
				},
				OrderDetails:   details,
				SecurityMedium: SecurityMediumNone,
			},
			Mutable: MutableHeader{
				TransactionPhase: PhaseInitialisation,
				SegmentNumber:    SegmentNumber{LastSegment: true, Value: 1},
			},
		},
		Body: Body{},
	}
}

// Marshal serializes a request to indented XML with the standard prolog.
func Marshal(req *Request) ([]byte, error) {
	data, err := xml.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling EBICS request: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// Unmarshal parses an EBICS response document.
func Unmarshal(data []byte) (*Response, error) {
	var resp Response
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing EBICS response: %w", err)
	}
	return &resp, nil
}
