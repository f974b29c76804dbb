// Copyright (c) 2024 ASIPI IT
// SPDX-License-Identifier: BSD-2-Clause

/*
Package validate checks parsed messages against their definition.

The [Validator] walks the message tree and reports cardinality, unexpected
elements, leaf types, decimal digits, dates, code sets, patterns, lengths and
attributes. Cross-field [Rule]s run afterwards; [DefaultRules] covers the
cash management messages (entry counts and sums, statement periods, entry
currencies, unsigned amounts).

	v := validate.New()
	report := v.Validate(msg)
	if err := report.Err(); err != nil {
	    // errors.Is(err, validate.ErrInvalid)
	}

Issue paths are XPath-like with 1-based positions on repeating elements:

	/Document/BkToCstmrStmt/Stmt[1]/Ntry[2]/Amt
	/Document/BkToCstmrStmt/Stmt[1]/Ntry[2]/Amt/@Ccy
*/
package validate
