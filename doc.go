// Copyright (c) 2024 ASIPI IT
// SPDX-License-Identifier: BSD-2-Clause

/*
Package banko analyzes the donations received by the Es-Selam association from
ISO 20022 cash management messages.

# Overview

Banks deliver account statements (camt.053) and debit/credit notifications
(camt.054) as XML. Banko parses these messages, validates them against their
message definitions, extracts the booked entries as transactions and
summarizes the credits per donor: total amount, monthly average and whether
the average falls below the configured minimum.

# Message Formats

The following message definitions are built in:

  - camt.053.001.08: Bank To Customer Statement
  - camt.054.001.08: Bank To Customer Debit Credit Notification

Further definitions can be loaded from YAML files, see pkg/schema.

# Package Structure

	github.com/omerasipi/Es-Selam-Banko/pkg/schema      - Message definitions and registry
	github.com/omerasipi/Es-Selam-Banko/pkg/message     - Parsing, detection and canonical serialization
	github.com/omerasipi/Es-Selam-Banko/pkg/validate    - Structural and business rule validation
	github.com/omerasipi/Es-Selam-Banko/pkg/camt        - Statement processing and message generation
	github.com/omerasipi/Es-Selam-Banko/pkg/donation    - Donor analysis
	github.com/omerasipi/Es-Selam-Banko/pkg/dedup       - Duplicate statement detection
	github.com/omerasipi/Es-Selam-Banko/pkg/compression - GZIP handling for uploads and archives

The service itself lives under internal/: the HTTP API (gin), NATS ingestion,
MongoDB or in-memory storage and the banko command line (cmd/banko).

# Quick Start

To analyze a statement file:

	svc := camt.NewService(schema.Default())
	txs, err := svc.ProcessFile(data)
	if err != nil {
	    return err
	}
	analysis := donation.NewAnalyzer().Analyze(txs)

To run the service:

	banko serve --config banko.yaml

# License

BSD-2-Clause License
*/
package banko
