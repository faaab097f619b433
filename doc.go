/*
Package gateway connects back-office payment automation to banks over the
EBICS file-exchange protocol and turns the returned ISO 20022 statements
into structured transaction records.

# Overview

The module covers three tightly coupled concerns: X.509/RSA certificate
lifecycle for subscriber authentication, the EBICS H004 request/response
exchange over HTTPS, and parsing of CAMT.053 bank-to-customer statements.
Connections and certificates are persisted in MongoDB; private keys are
sealed before storage.

# Specifications Implemented

  - EBICS H004 (order types HKD and HTD, single-phase exchanges):
    https://www.ebics.org/
  - ISO 20022 CAMT.053.001.08 bank-to-customer statement:
    https://www.iso20022.org/
  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core1/

# Package Structure

	github.com/ferderer/EBICS-DocuSign-Gateway/pkg/client    - EBICS protocol client API
	github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics     - Request/response schema, builders, signing
	github.com/ferderer/EBICS-DocuSign-Gateway/pkg/camt      - CAMT.053 statement parser
	github.com/ferderer/EBICS-DocuSign-Gateway/pkg/cert      - Certificate and key lifecycle
	github.com/ferderer/EBICS-DocuSign-Gateway/pkg/transport - HTTPS transport with TLS 1.2/1.3

# Quick Start

To test connectivity and download statements:

	import (
	    "github.com/ferderer/EBICS-DocuSign-Gateway/pkg/client"
	    "github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics"
	)

	conn := &ebics.Connection{
	    HostID:    "EBIXHOST",
	    PartnerID: "PARTNER1",
	    UserID:    "USER0001",
	    BankURL:   "https://ebics.example.com/ebicsweb",
	}

	c := client.New(nil)
	ok, err := c.TestConnection(ctx, conn)
	if err != nil {
	    // transport failure
	}
	if ok {
	    records, err := c.DownloadStatements(ctx, conn, from, to)
	    _ = records
	    _ = err
	}

See examples/basic for a complete walkthrough and cmd/ebics-gateway for
the command-line interface.
*/
package gateway
