// Copyright (c) 2024 ASIPI IT
// SPDX-License-Identifier: BSD-2-Clause

// Package donation summarizes incoming payments per donor.
//
// Only credit transactions count as donations. They are grouped by debtor
// name, and each donor gets a total and a monthly average computed over the
// calendar months from the first to the last donation, both inclusive:
//
//	a := donation.NewAnalyzer()
//	analysis := a.Analyze(txs)
//	for _, d := range analysis.Donors {
//	    fmt.Println(d.Name, d.MonthlyAverage, d.BelowMinimum)
//	}
//
// Donors whose average falls under the minimum (30.00 by default) are
// flagged and counted in [Analysis.DonorsBelowMinimum].
package donation
