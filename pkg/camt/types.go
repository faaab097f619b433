// Package camt parses ISO 20022 CAMT.053.001.08 bank-to-customer statements
// into flat transaction records.
//
// The banking schema is optional-heavy: every node below the Document root
// may be absent. All nested structures are therefore pointer-typed and the
// parser only ever traverses them through guarded accessors.
package camt

import (
	"encoding/xml"
	"time"
)

// NsCamt053 is the CAMT.053.001.08 document namespace.
const NsCamt053 = "urn:iso:std:iso:20022:tech:xsd:camt.053.001.08"

// Document is the CAMT.053 root element.
type Document struct {
	XMLName   xml.Name   `xml:"urn:iso:std:iso:20022:tech:xsd:camt.053.001.08 Document"`
	Statement *Statement `xml:"BkToCstmrStmt"`
}

// Statement is the bank-to-customer statement wrapper.
type Statement struct {
	GroupHeader *GroupHeader    `xml:"GrpHdr"`
	Statements  []StatementInfo `xml:"Stmt"`
}

// GroupHeader carries message-level identification.
type GroupHeader struct {
	MessageID        string      `xml:"MsgId"`
	CreationDateTime string      `xml:"CreDtTm"`
	Pagination       *Pagination `xml:"MsgPgntn"`
	AdditionalInfo   string      `xml:"AddtlInf"`
}

// Pagination marks the message page position.
type Pagination struct {
	PageNumber int  `xml:"PgNb"`
	LastPage   bool `xml:"LastPgInd"`
}

// StatementInfo is one account statement with its entries.
type StatementInfo struct {
	ID             string    `xml:"Id"`
	SequenceNumber int       `xml:"ElctrncSeqNb"`
	Account        *Account  `xml:"Acct"`
	Balances       []Balance `xml:"Bal"`
	Entries        []Entry   `xml:"Ntry"`
}

// Account identifies the statement's account.
type Account struct {
	ID       *AccountID `xml:"Id"`
	Currency string     `xml:"Ccy"`
	Owner    *Party     `xml:"Ownr"`
}

// AccountID is either an IBAN or a generic identifier.
type AccountID struct {
	IBAN  string   `xml:"IBAN"`
	Other *OtherID `xml:"Othr"`
}

// OtherID is a non-IBAN account identifier.
type OtherID struct {
	ID string `xml:"Id"`
}

// Party names an involved party.
type Party struct {
	Name string `xml:"Nm"`
}

// Balance is an account balance snapshot.
type Balance struct {
	Type   *BalanceType `xml:"Tp"`
	Amount *Amount      `xml:"Amt"`
	Credit string       `xml:"CdtDbtInd"`
	Date   *DateChoice  `xml:"Dt"`
}

// BalanceType codes the balance kind (OPBD, CLBD, ...).
type BalanceType struct {
	CodeOrProprietary *BalanceCode `xml:"CdOrPrtry"`
}

// BalanceCode is the balance type code.
type BalanceCode struct {
	Code string `xml:"Cd"`
}

// Entry is one booked transaction on the statement.
type Entry struct {
	Reference      string        `xml:"NtryRef"`
	Amount         *Amount       `xml:"Amt"`
	CreditDebit    string        `xml:"CdtDbtInd"`
	Reversal       bool          `xml:"RvslInd"`
	Status         *EntryStatus  `xml:"Sts"`
	BookingDate    *DateChoice   `xml:"BookgDt"`
	ValueDate      *DateChoice   `xml:"ValDt"`
	ServicerRef    string        `xml:"AcctSvcrRef"`
	Details        *EntryDetails `xml:"NtryDtls"`
	AdditionalInfo string        `xml:"AddtlNtryInf"`
}

// Amount is a decimal value with its currency attribute. The value is kept
// as the bank's literal decimal string.
type Amount struct {
	Currency string `xml:"Ccy,attr"`
	Value    string `xml:",chardata"`
}

// EntryStatus codes the entry's booking status.
type EntryStatus struct {
	Code string `xml:"Cd"`
}

// DateChoice holds a date or date-time; only the plain date is used.
type DateChoice struct {
	Date ISODate `xml:"Dt"`
}

// EntryDetails groups the transaction details of an entry.
type EntryDetails struct {
	Transactions []TransactionDetails `xml:"TxDtls"`
}

// TransactionDetails carries per-transaction references and parties.
type TransactionDetails struct {
	References     *References     `xml:"Refs"`
	RelatedParties *RelatedParties `xml:"RltdPties"`
	Remittance     *Remittance     `xml:"RmtInf"`
}

// References carries the transaction reference identifiers.
type References struct {
	EndToEndID    string `xml:"EndToEndId"`
	TransactionID string `xml:"TxId"`
}

// RelatedParties names debtor and creditor with their accounts.
type RelatedParties struct {
	Debtor           *PartyChoice  `xml:"Dbtr"`
	DebtorAccount    *PartyAccount `xml:"DbtrAcct"`
	Creditor         *PartyChoice  `xml:"Cdtr"`
	CreditorAccount  *PartyAccount `xml:"CdtrAcct"`
	UltimateDebtor   *PartyChoice  `xml:"UltmtDbtr"`
	UltimateCreditor *PartyChoice  `xml:"UltmtCdtr"`
}

// PartyChoice wraps a party element.
type PartyChoice struct {
	Party *Party `xml:"Pty"`
}

// PartyAccount identifies a counterparty account.
type PartyAccount struct {
	ID *AccountID `xml:"Id"`
}

// Remittance carries payment purpose information.
type Remittance struct {
	Unstructured []string              `xml:"Ustrd"`
	Structured   *StructuredRemittance `xml:"Strd"`
}

// StructuredRemittance carries a creditor reference plus free text.
type StructuredRemittance struct {
	CreditorReference *CreditorReference `xml:"CdtrRefInf"`
	AdditionalInfo    string             `xml:"AddtlRmtInf"`
}

// CreditorReference is a structured payment reference (e.g. QR/ISR).
type CreditorReference struct {
	Reference string `xml:"Ref"`
}

// ISODate unmarshals the CAMT yyyy-mm-dd date format.
type ISODate struct {
	time.Time
}

// UnmarshalXML implements xml.Unmarshaler.
func (d *ISODate) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		return err
	}
	d.Time = parsed
	return nil
}

// TransactionRecord is the flat output of the statement parser. Optional
// fields are empty strings or zero times when the source node was absent.
type TransactionRecord struct {
	TransactionID   string
	ValueDate       time.Time
	BookingDate     time.Time
	Amount          string
	Currency        string
	DebtorName      string
	DebtorAccount   string
	CreditorName    string
	CreditorAccount string
	RemittanceInfo  string
	EndToEndID      string
}
