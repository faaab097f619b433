// Package client implements the EBICS protocol client: connectivity tests
// via HKD and statement downloads via HTD, both single-phase exchanges.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/camt"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/transport"
)

// Client performs EBICS exchanges against a bank endpoint. Each call is an
// independent round trip; no session state is carried between calls.
type Client struct {
	httpClient *transport.HTTPSClient
	parser     *camt.Parser
	signer     *ebics.Signer
	logger     *slog.Logger
}

// Config holds client configuration. Signer is optional: sandbox hosts
// accept unsigned requests.
type Config struct {
	HTTPSConfig *transport.HTTPSConfig
	Signer      *ebics.Signer
	Logger      *slog.Logger
}

// New creates an EBICS protocol client.
func New(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: transport.NewHTTPSClient(config.HTTPSConfig),
		parser:     camt.NewParser(logger),
		signer:     config.Signer,
		logger:     logger,
	}
}

// TestConnection sends an HKD request to the bank and reports whether the
// bank answered with a success return code. A rejected request yields
// (false, nil); transport or parse failures yield a *ConnectionError.
func (c *Client) TestConnection(ctx context.Context, conn *ebics.Connection) (bool, error) {
	exchangeID := uuid.NewString()
	c.logger.Info("testing EBICS connection",
		"hostID", conn.HostID, "bankURL", conn.BankURL, "exchangeID", exchangeID)

	resp, err := c.exchange(ctx, conn, ebics.NewHKDRequest(conn))
	if err != nil {
		return false, err
	}

	if !resp.IsSuccess() {
		c.logger.Warn("EBICS connection test rejected",
			"hostID", conn.HostID,
			"returnCode", resp.ReturnCode(),
			"reportText", resp.ErrorMessage(),
			"exchangeID", exchangeID)
		return false, nil
	}

	c.logger.Info("EBICS connection test successful", "hostID", conn.HostID, "exchangeID", exchangeID)
	return true, nil
}

// DownloadStatements sends an HTD request for the given date range, decodes
// the returned order data and parses it into transaction records. A bank
// rejection yields a *TransactionError carrying the return code; a success
// response without order data yields an empty list.
func (c *Client) DownloadStatements(ctx context.Context, conn *ebics.Connection, from, to time.Time) ([]camt.TransactionRecord, error) {
	exchangeID := uuid.NewString()
	c.logger.Info("downloading statements",
		"hostID", conn.HostID,
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"),
		"exchangeID", exchangeID)

	resp, err := c.exchange(ctx, conn, ebics.NewHTDRequest(conn, from, to))
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		c.logger.Error("HTD request rejected",
			"hostID", conn.HostID,
			"returnCode", resp.ReturnCode(),
			"reportText", resp.ErrorMessage(),
			"exchangeID", exchangeID)
		return nil, &TransactionError{
			HostID:     conn.HostID,
			ReturnCode: resp.ReturnCode(),
			ReportText: resp.ErrorMessage(),
		}
	}

	if !resp.HasOrderData() {
		c.logger.Warn("no transaction data received", "hostID", conn.HostID, "exchangeID", exchangeID)
		return []camt.TransactionRecord{}, nil
	}

	orderData := resp.DecodedOrderData()
	if orderData == nil {
		// Undecodable order data is treated as no data.
		return []camt.TransactionRecord{}, nil
	}
	c.logger.Debug("received order data", "hostID", conn.HostID, "bytes", len(orderData))

	records, err := c.parser.ParseStatements(orderData)
	if err != nil {
		return nil, &TransactionError{
			HostID:     conn.HostID,
			ReturnCode: resp.ReturnCode(),
			ReportText: fmt.Sprintf("order data is not a valid CAMT.053 document: %v", err),
		}
	}
	return records, nil
}

// exchange marshals, optionally signs, posts and parses one EBICS round
// trip. All failures are wrapped as *ConnectionError.
func (c *Client) exchange(ctx context.Context, conn *ebics.Connection, req *ebics.Request) (*ebics.Response, error) {
	requestXML, err := ebics.Marshal(req)
	if err != nil {
		return nil, &ConnectionError{HostID: conn.HostID, Cause: err}
	}

	if c.signer != nil {
		requestXML, err = c.signer.Sign(requestXML)
		if err != nil {
			return nil, &ConnectionError{HostID: conn.HostID, Cause: fmt.Errorf("signing request: %w", err)}
		}
	}

	responseXML, err := c.httpClient.Send(ctx, conn.BankURL, requestXML)
	if err != nil {
		return nil, &ConnectionError{HostID: conn.HostID, Cause: err}
	}

	resp, err := ebics.Unmarshal(responseXML)
	if err != nil {
		return nil, &ConnectionError{HostID: conn.HostID, Cause: err}
	}

	phase := ""
	if resp.Header != nil && resp.Header.Mutable != nil {
		phase = resp.Header.Mutable.TransactionPhase
	}
	c.logger.Debug("EBICS exchange completed",
		"hostID", conn.HostID,
		"phase", phase,
		"returnCode", resp.ReturnCode())
	return resp, nil
}
