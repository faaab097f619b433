package camt

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultCurrency is assumed when neither the entry amount nor the account
// carries a currency code.
const DefaultCurrency = "CHF"

// Parser converts CAMT.053 documents into transaction records. Malformed
// entries are skipped with a warning so one bad entry cannot abort a batch.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a statement parser. A nil logger falls back to
// slog.Default().
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseStatements parses raw CAMT.053.001.08 bytes into a flat list of
// transaction records. A document without statements or entries yields an
// empty list, not an error — zero-entry responses are routine.
func (p *Parser) ParseStatements(data []byte) ([]TransactionRecord, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing CAMT.053 document: %w", err)
	}

	records := make([]TransactionRecord, 0)
	if doc.Statement == nil || len(doc.Statement.Statements) == 0 {
		p.logger.Warn("no statement data in CAMT.053 document")
		return records, nil
	}

	for _, stmt := range doc.Statement.Statements {
		accountNumber := accountNumberOf(stmt.Account)
		accountCurrency := ""
		if stmt.Account != nil {
			accountCurrency = stmt.Account.Currency
		}

		p.logger.Debug("processing statement",
			"statementID", stmt.ID,
			"account", accountNumber,
			"owner", accountOwnerOf(stmt.Account),
			"entries", len(stmt.Entries))

		for _, entry := range stmt.Entries {
			record, ok := p.convertEntry(entry, accountCurrency)
			if ok {
				records = append(records, record)
			}
		}
	}

	p.logger.Info("parsed statement entries", "records", len(records))
	return records, nil
}

// convertEntry flattens one statement entry. Entries without an amount are
// dropped with a warning.
func (p *Parser) convertEntry(entry Entry, accountCurrency string) (TransactionRecord, bool) {
	if entry.Amount == nil || strings.TrimSpace(entry.Amount.Value) == "" {
		p.logger.Warn("skipping entry without amount", "reference", entry.ServicerRef)
		return TransactionRecord{}, false
	}

	tx := firstTransactionDetails(entry)

	record := TransactionRecord{
		TransactionID:   entry.ServicerRef,
		Amount:          signedAmount(entry.Amount, entry.CreditDebit),
		Currency:        resolveCurrency(entry.Amount, accountCurrency),
		DebtorName:      debtorName(tx),
		DebtorAccount:   partyAccountNumber(debtorAccount(tx)),
		CreditorName:    creditorName(tx),
		CreditorAccount: partyAccountNumber(creditorAccount(tx)),
		RemittanceInfo:  remittanceInfo(tx),
		EndToEndID:      endToEndID(tx),
	}
	if entry.ValueDate != nil {
		record.ValueDate = entry.ValueDate.Date.Time
	}
	if entry.BookingDate != nil {
		record.BookingDate = entry.BookingDate.Date.Time
	}
	return record, true
}

// signedAmount keeps the bank's literal decimal string, prefixing a minus
// sign for debits.
func signedAmount(amount *Amount, creditDebit string) string {
	value := strings.TrimSpace(amount.Value)
	if creditDebit == "DBIT" && !strings.HasPrefix(value, "-") {
		return "-" + value
	}
	return value
}

func resolveCurrency(amount *Amount, accountCurrency string) string {
	if amount.Currency != "" {
		return amount.Currency
	}
	if accountCurrency != "" {
		return accountCurrency
	}
	return DefaultCurrency
}

func accountNumberOf(account *Account) string {
	if account == nil || account.ID == nil {
		return ""
	}
	if account.ID.IBAN != "" {
		return account.ID.IBAN
	}
	if account.ID.Other != nil {
		return account.ID.Other.ID
	}
	return ""
}

func accountOwnerOf(account *Account) string {
	if account == nil || account.Owner == nil {
		return ""
	}
	return account.Owner.Name
}

func firstTransactionDetails(entry Entry) *TransactionDetails {
	if entry.Details == nil || len(entry.Details.Transactions) == 0 {
		return nil
	}
	return &entry.Details.Transactions[0]
}

func debtorName(tx *TransactionDetails) string {
	if tx == nil || tx.RelatedParties == nil {
		return ""
	}
	if name := partyName(tx.RelatedParties.Debtor); name != "" {
		return name
	}
	return partyName(tx.RelatedParties.UltimateDebtor)
}

func creditorName(tx *TransactionDetails) string {
	if tx == nil || tx.RelatedParties == nil {
		return ""
	}
	if name := partyName(tx.RelatedParties.Creditor); name != "" {
		return name
	}
	return partyName(tx.RelatedParties.UltimateCreditor)
}

func partyName(choice *PartyChoice) string {
	if choice == nil || choice.Party == nil {
		return ""
	}
	return choice.Party.Name
}

func debtorAccount(tx *TransactionDetails) *PartyAccount {
	if tx == nil || tx.RelatedParties == nil {
		return nil
	}
	return tx.RelatedParties.DebtorAccount
}

func creditorAccount(tx *TransactionDetails) *PartyAccount {
	if tx == nil || tx.RelatedParties == nil {
		return nil
	}
	return tx.RelatedParties.CreditorAccount
}

func partyAccountNumber(account *PartyAccount) string {
	if account == nil || account.ID == nil {
		return ""
	}
	if account.ID.IBAN != "" {
		return account.ID.IBAN
	}
	if account.ID.Other != nil {
		return account.ID.Other.ID
	}
	return ""
}

// remittanceInfo prefers unstructured free text; structured references are
// rendered as "Ref: <reference>" plus any additional text.
func remittanceInfo(tx *TransactionDetails) string {
	if tx == nil || tx.Remittance == nil {
		return ""
	}
	rmt := tx.Remittance

	if len(rmt.Unstructured) > 0 {
		return strings.Join(rmt.Unstructured, " ")
	}

	if rmt.Structured == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if rmt.Structured.CreditorReference != nil && rmt.Structured.CreditorReference.Reference != "" {
		parts = append(parts, "Ref: "+rmt.Structured.CreditorReference.Reference)
	}
	if rmt.Structured.AdditionalInfo != "" {
		parts = append(parts, rmt.Structured.AdditionalInfo)
	}
	return strings.Join(parts, " ")
}

func endToEndID(tx *TransactionDetails) string {
	if tx == nil || tx.References == nil {
		return ""
	}
	return tx.References.EndToEndID
}
