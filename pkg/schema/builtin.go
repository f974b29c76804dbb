package schema

// Built-in message identifiers
const (
	Camt05300108 ID = "camt.053.001.08" // BankToCustomerStatement
	Camt05400108 ID = "camt.054.001.08" // BankToCustomerDebitCreditNotification
)

// Code set names used by the built-in definitions
const (
	CodeSetCreditDebit = "CreditDebitCode"
	CodeSetEntryStatus = "ExternalEntryStatus1Code"
	CodeSetBalanceType = "ExternalBalanceType1Code"
)

const (
	patternCurrency = `^[A-Z]{3}$`
	patternIBAN     = `^[A-Z]{2}[0-9]{2}[a-zA-Z0-9]{1,30}$`
	patternBIC      = `^[A-Z0-9]{4}[A-Z]{2}[A-Z0-9]{2}([A-Z0-9]{3})?$`
	patternCount    = `^[0-9]{1,15}$`
	patternSeqNb    = `^[0-9]{1,18}$`
)

// Builtin returns fresh copies of the built-in definitions
func Builtin() []*Definition {
	return []*Definition{
		statementDefinition(),
		notificationDefinition(),
	}
}

func codeSets() map[string][]string {
	return map[string][]string{
		CodeSetCreditDebit: {"CRDT", "DBIT"},
		CodeSetEntryStatus: {"BOOK", "FUTR", "INFO", "PDNG"},
		CodeSetBalanceType: {"CLAV", "CLBD", "FWAV", "INFO", "ITAV", "ITBD", "OPAV", "OPBD", "PRCD", "XPCD"},
	}
}

func statementDefinition() *Definition {
	const root = "BkToCstmrStmt"
	stmt := root + "/Stmt"

	elems := []ElementRule{
		{Path: root, MinOccurs: 1, MaxOccurs: 1},
	}
	elems = append(elems, groupHeaderRules(root)...)
	elems = append(elems,
		ElementRule{Path: stmt, MinOccurs: 1, MaxOccurs: Unbounded, Open: true},
		text(stmt+"/Id", 1, 35),
		ElementRule{Path: stmt + "/ElctrncSeqNb", MaxOccurs: 1, Type: TypeText, Pattern: patternSeqNb},
		ElementRule{Path: stmt + "/LglSeqNb", MaxOccurs: 1, Type: TypeText, Pattern: patternSeqNb},
		ElementRule{Path: stmt + "/CreDtTm", MaxOccurs: 1, Type: TypeDateTime},
		ElementRule{Path: stmt + "/FrToDt", MaxOccurs: 1},
		ElementRule{Path: stmt + "/FrToDt/FrDtTm", MinOccurs: 1, MaxOccurs: 1, Type: TypeDateTime},
		ElementRule{Path: stmt + "/FrToDt/ToDtTm", MinOccurs: 1, MaxOccurs: 1, Type: TypeDateTime},
	)
	elems = append(elems, accountRules(stmt)...)
	elems = append(elems, balanceRules(stmt)...)
	elems = append(elems, summaryRules(stmt)...)
	elems = append(elems, entryRules(stmt)...)
	elems = append(elems, ElementRule{Path: root + "/SplmtryData", MaxOccurs: Unbounded, Open: true})

	return &Definition{
		ID:          Camt05300108,
		Root:        root,
		Description: "BankToCustomerStatementV08",
		CodeSets:    codeSets(),
		Elements:    elems,
	}
}

func notificationDefinition() *Definition {
	const root = "BkToCstmrDbtCdtNtfctn"
	ntfctn := root + "/Ntfctn"

	elems := []ElementRule{
		{Path: root, MinOccurs: 1, MaxOccurs: 1},
	}
	elems = append(elems, groupHeaderRules(root)...)
	elems = append(elems,
		ElementRule{Path: ntfctn, MinOccurs: 1, MaxOccurs: Unbounded, Open: true},
		text(ntfctn+"/Id", 1, 35),
		ElementRule{Path: ntfctn + "/NtfctnPgntn", MaxOccurs: 1, Open: true},
		ElementRule{Path: ntfctn + "/ElctrncSeqNb", MaxOccurs: 1, Type: TypeText, Pattern: patternSeqNb},
		ElementRule{Path: ntfctn + "/CreDtTm", MaxOccurs: 1, Type: TypeDateTime},
		ElementRule{Path: ntfctn + "/FrToDt", MaxOccurs: 1},
		ElementRule{Path: ntfctn + "/FrToDt/FrDtTm", MinOccurs: 1, MaxOccurs: 1, Type: TypeDateTime},
		ElementRule{Path: ntfctn + "/FrToDt/ToDtTm", MinOccurs: 1, MaxOccurs: 1, Type: TypeDateTime},
	)
	elems = append(elems, accountRules(ntfctn)...)
	elems = append(elems, summaryRules(ntfctn)...)
	elems = append(elems, entryRules(ntfctn)...)
	elems = append(elems, ElementRule{Path: root + "/SplmtryData", MaxOccurs: Unbounded, Open: true})

	return &Definition{
		ID:          Camt05400108,
		Root:        root,
		Description: "BankToCustomerDebitCreditNotificationV08",
		CodeSets:    codeSets(),
		Elements:    elems,
	}
}

func text(path string, minOccurs, maxLength int) ElementRule {
	return ElementRule{Path: path, MinOccurs: minOccurs, MaxOccurs: 1, Type: TypeText, MinLength: 1, MaxLength: maxLength}
}

func amount(path string, minOccurs int) ElementRule {
	return ElementRule{
		Path:           path,
		MinOccurs:      minOccurs,
		MaxOccurs:      1,
		Type:           TypeDecimal,
		TotalDigits:    18,
		FractionDigits: 5,
		Attributes:     []AttributeRule{{Name: "Ccy", Required: true, Pattern: patternCurrency}},
	}
}

func creditDebit(path string, minOccurs int) ElementRule {
	return ElementRule{Path: path, MinOccurs: minOccurs, MaxOccurs: 1, Type: TypeCode, CodeSet: CodeSetCreditDebit}
}

func dateChoice(path string, minOccurs int) []ElementRule {
	return []ElementRule{
		{Path: path, MinOccurs: minOccurs, MaxOccurs: 1, Choice: true},
		{Path: path + "/Dt", MaxOccurs: 1, Type: TypeDate},
		{Path: path + "/DtTm", MaxOccurs: 1, Type: TypeDateTime},
	}
}

func groupHeaderRules(root string) []ElementRule {
	hdr := root + "/GrpHdr"
	return []ElementRule{
		{Path: hdr, MinOccurs: 1, MaxOccurs: 1, Open: true},
		text(hdr+"/MsgId", 1, 35),
		{Path: hdr + "/CreDtTm", MinOccurs: 1, MaxOccurs: 1, Type: TypeDateTime},
	}
}

func accountRules(parent string) []ElementRule {
	acct := parent + "/Acct"
	return []ElementRule{
		{Path: acct, MinOccurs: 1, MaxOccurs: 1, Open: true},
		{Path: acct + "/Id", MinOccurs: 1, MaxOccurs: 1, Choice: true},
		{Path: acct + "/Id/IBAN", MaxOccurs: 1, Type: TypeText, Pattern: patternIBAN},
		{Path: acct + "/Id/Othr", MaxOccurs: 1, Open: true},
		{Path: acct + "/Ccy", MaxOccurs: 1, Type: TypeText, Pattern: patternCurrency},
		{Path: acct + "/Nm", MaxOccurs: 1, Type: TypeText, MinLength: 1, MaxLength: 70},
		{Path: acct + "/Svcr", MaxOccurs: 1, Open: true},
		{Path: acct + "/Svcr/FinInstnId", MaxOccurs: 1, Open: true},
		{Path: acct + "/Svcr/FinInstnId/BICFI", MaxOccurs: 1, Type: TypeText, Pattern: patternBIC},
	}
}

func balanceRules(parent string) []ElementRule {
	bal := parent + "/Bal"
	out := []ElementRule{
		{Path: bal, MaxOccurs: Unbounded, Open: true},
		{Path: bal + "/Tp", MinOccurs: 1, MaxOccurs: 1, Open: true},
		{Path: bal + "/Tp/CdOrPrtry", MinOccurs: 1, MaxOccurs: 1, Choice: true},
		{Path: bal + "/Tp/CdOrPrtry/Cd", MaxOccurs: 1, Type: TypeCode, CodeSet: CodeSetBalanceType},
		text(bal+"/Tp/CdOrPrtry/Prtry", 0, 35),
		amount(bal+"/Amt", 1),
		creditDebit(bal+"/CdtDbtInd", 1),
	}
	return append(out, dateChoice(bal+"/Dt", 1)...)
}

func summaryRules(parent string) []ElementRule {
	sum := parent + "/TxsSummry"
	out := []ElementRule{
		{Path: sum, MaxOccurs: 1, Open: true},
	}
	for _, group := range []string{"TtlNtries", "TtlCdtNtries", "TtlDbtNtries"} {
		g := sum + "/" + group
		out = append(out,
			ElementRule{Path: g, MaxOccurs: 1, Open: true},
			ElementRule{Path: g + "/NbOfNtries", MaxOccurs: 1, Type: TypeText, Pattern: patternCount},
			ElementRule{Path: g + "/Sum", MaxOccurs: 1, Type: TypeDecimal, TotalDigits: 18, FractionDigits: 5},
		)
	}
	return out
}

func entryRules(parent string) []ElementRule {
	ntry := parent + "/Ntry"
	tx := ntry + "/NtryDtls/TxDtls"

	out := []ElementRule{
		{Path: ntry, MaxOccurs: Unbounded, Open: true},
		text(ntry+"/NtryRef", 0, 35),
		amount(ntry+"/Amt", 1),
		creditDebit(ntry+"/CdtDbtInd", 1),
		{Path: ntry + "/RvslInd", MaxOccurs: 1, Type: TypeBoolean},
		{Path: ntry + "/Sts", MinOccurs: 1, MaxOccurs: 1, Choice: true},
		{Path: ntry + "/Sts/Cd", MaxOccurs: 1, Type: TypeCode, CodeSet: CodeSetEntryStatus},
		text(ntry+"/Sts/Prtry", 0, 35),
	}
	out = append(out, dateChoice(ntry+"/BookgDt", 0)...)
	out = append(out, dateChoice(ntry+"/ValDt", 0)...)
	out = append(out,
		text(ntry+"/AcctSvcrRef", 0, 35),
		ElementRule{Path: ntry + "/BkTxCd", MaxOccurs: 1, Open: true},
		text(ntry+"/AddtlNtryInf", 0, 500),
		ElementRule{Path: ntry + "/NtryDtls", MaxOccurs: Unbounded, Open: true},
		ElementRule{Path: ntry + "/NtryDtls/Btch", MaxOccurs: 1, Open: true},
		ElementRule{Path: tx, MaxOccurs: Unbounded, Open: true},
		ElementRule{Path: tx + "/Refs", MaxOccurs: 1, Open: true},
		text(tx+"/Refs/MsgId", 0, 35),
		text(tx+"/Refs/AcctSvcrRef", 0, 35),
		text(tx+"/Refs/EndToEndId", 0, 35),
		amount(tx+"/Amt", 0),
		creditDebit(tx+"/CdtDbtInd", 0),
		ElementRule{Path: tx + "/RltdPties", MaxOccurs: 1, Open: true},
		ElementRule{Path: tx + "/RltdPties/Dbtr", MaxOccurs: 1, Open: true},
		ElementRule{Path: tx + "/RltdPties/Dbtr/Pty", MaxOccurs: 1, Open: true},
		text(tx+"/RltdPties/Dbtr/Pty/Nm", 0, 140),
		ElementRule{Path: tx + "/RltdPties/DbtrAcct", MaxOccurs: 1, Open: true},
		ElementRule{Path: tx + "/RltdPties/Cdtr", MaxOccurs: 1, Open: true},
		ElementRule{Path: tx + "/RltdPties/Cdtr/Pty", MaxOccurs: 1, Open: true},
		text(tx+"/RltdPties/Cdtr/Pty/Nm", 0, 140),
		ElementRule{Path: tx + "/RmtInf", MaxOccurs: 1, Open: true},
		ElementRule{Path: tx + "/RmtInf/Ustrd", MaxOccurs: Unbounded, Type: TypeText, MinLength: 1, MaxLength: 140},
		ElementRule{Path: tx + "/RmtInf/Strd", MaxOccurs: Unbounded, Open: true},
		ElementRule{Path: tx + "/RmtInf/Strd/CdtrRefInf", MaxOccurs: 1, Open: true},
		text(tx+"/RmtInf/Strd/CdtrRefInf/Ref", 0, 35),
	)
	return out
}
