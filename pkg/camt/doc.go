// Copyright (c) 2024 ASIPI IT
// SPDX-License-Identifier: BSD-2-Clause

/*
Package camt reads and generates ISO 20022 cash management messages.

# Formats

  - camt.053.001.08 BankToCustomerStatement, one or more Stmt blocks
  - camt.054.001.08 BankToCustomerDebitCreditNotification, one or more Ntfctn blocks

Both share the entry structure, so the typed bindings use one [AccountReport]
type for Stmt and Ntfctn.

# Processing

A [Processor] maps every entry of a message to a [Transaction]. The
[Service] parses and validates a file, then hands it to the first processor
that accepts it:

	svc := camt.NewService(schema.Default())
	txs, err := svc.ProcessFile(data)

Entries are mapped as follows:

  - debtor: first TxDtls/RltdPties/Dbtr/Pty/Nm, else "Unknown"
  - date: BookgDt (Dt, then DtTm), then ValDt, then the processor clock
  - amount: Amt, else zero
  - reference: first Strd/CdtrRefInf/Ref, else the first Ustrd line
  - type: CRDT is a credit, anything else a debit

# Building Messages

	data, err := camt.NewStatement(
	    camt.WithAccount("CH9300762011623852957", "CHF"),
	    camt.WithEntry(camt.EntryInput{
	        Amount:      decimal.RequireFromString("50.00"),
	        Type:        camt.Credit,
	        BookingDate: time.Now(),
	        DebtorName:  "Jane Doe",
	    }),
	).Marshal()

The builder computes the transaction summary and validates the generated
message before returning it.
*/
package camt
