package client

import "fmt"

// ConnectionError reports transport-level failures: refused connections,
// timeouts, non-2xx HTTP statuses, or unparseable response XML.
type ConnectionError struct {
	HostID string
	Cause  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("EBICS connection to %s failed: %v", e.HostID, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// TransactionError reports a download operation the bank rejected, carrying
// the bank's return code and report text.
type TransactionError struct {
	HostID     string
	ReturnCode string
	ReportText string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("EBICS transaction on %s failed: %s - %s", e.HostID, e.ReturnCode, e.ReportText)
}
