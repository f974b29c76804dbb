package validate

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/omerasipi/Es-Selam-Banko/pkg/message"
	"github.com/omerasipi/Es-Selam-Banko/pkg/schema"
)

// Rule is a check spanning several fields of a message
type Rule struct {
	Name string
	// Families restricts the rule to message families such as "camt.053".
	// An empty list applies the rule to every message.
	Families []string
	Check    func(msg *message.Message, rep *Reporter)
}

func (r Rule) applies(id schema.ID) bool {
	if len(r.Families) == 0 {
		return true
	}
	for _, f := range r.Families {
		if f == id.Family() {
			return true
		}
	}
	return false
}

var cashManagementFamilies = []string{"camt.052", "camt.053", "camt.054"}

// reportContainers lists the repeating report blocks holding entries
var reportContainers = []string{"Stmt", "Ntfctn", "Rpt"}

// DefaultRules returns the built-in cross-field rules for cash management messages
func DefaultRules() []Rule {
	return []Rule{
		{Name: "non-negative-amounts", Families: cashManagementFamilies, Check: checkNonNegativeAmounts},
		{Name: "entry-count", Families: cashManagementFamilies, Check: checkEntryCounts},
		{Name: "entry-sum", Families: cashManagementFamilies, Check: checkEntrySums},
		{Name: "period", Families: cashManagementFamilies, Check: checkPeriod},
		{Name: "entry-currency", Families: cashManagementFamilies, Check: checkEntryCurrency},
	}
}

func containers(msg *message.Message) []*etree.Element {
	var out []*etree.Element
	for _, name := range reportContainers {
		out = append(out, msg.FindAll(name)...)
	}
	return out
}

var amountTags = map[string]bool{"Amt": true, "Sum": true, "InstdAmt": true, "TxAmt": true}

// ISO amounts are unsigned, the direction is carried by CdtDbtInd
func checkNonNegativeAmounts(msg *message.Message, rep *Reporter) {
	for _, c := range containers(msg) {
		walkElements(c, func(el *etree.Element) {
			if !amountTags[el.Tag] || len(el.ChildElements()) > 0 {
				return
			}
			v, err := message.ParseDecimal(message.Text(el))
			if err != nil {
				return
			}
			if v.IsNegative() {
				rep.Errorf(el, CodeNegativeAmount, "amount %s must not be negative", v.String())
			}
		})
	}
}

func checkEntryCounts(msg *message.Message, rep *Reporter) {
	for _, c := range containers(msg) {
		entries := message.Children(c, "Ntry")
		for _, g := range summaryGroups {
			nb := message.Child(c, "TxsSummry/"+g.group+"/NbOfNtries")
			if nb == nil {
				continue
			}
			declared, err := strconv.Atoi(message.Text(nb))
			if err != nil {
				continue
			}
			actual := 0
			for _, e := range entries {
				if g.filter == "" || message.ChildText(e, "CdtDbtInd") == g.filter {
					actual++
				}
			}
			if declared != actual {
				rep.Errorf(nb, CodeEntryCount, "declared %d entries, found %d", declared, actual)
			}
		}
	}
}

// summaryGroups pairs TxsSummry groups with the CdtDbtInd they count, empty for all entries
var summaryGroups = []struct{ group, filter string }{
	{"TtlNtries", ""},
	{"TtlCdtNtries", "CRDT"},
	{"TtlDbtNtries", "DBIT"},
}

func checkEntrySums(msg *message.Message, rep *Reporter) {
	for _, c := range containers(msg) {
		entries := message.Children(c, "Ntry")
		for _, g := range summaryGroups {
			sumEl := message.Child(c, "TxsSummry/"+g.group+"/Sum")
			if sumEl == nil {
				continue
			}
			declared, err := message.ParseDecimal(message.Text(sumEl))
			if err != nil {
				continue
			}
			actual, ok := sumEntries(entries, g.filter)
			if !ok {
				continue
			}
			if !declared.Equal(actual) {
				rep.Errorf(sumEl, CodeEntrySum, "declared sum %s does not match entry total %s", declared.String(), actual.String())
			}
		}
	}
}

// sumEntries adds the entry amounts, reporting false when one cannot be read
func sumEntries(entries []*etree.Element, filter string) (decimal.Decimal, bool) {
	total := decimal.Zero
	for _, e := range entries {
		if filter != "" && message.ChildText(e, "CdtDbtInd") != filter {
			continue
		}
		v, err := message.ParseDecimal(message.ChildText(e, "Amt"))
		if err != nil {
			return decimal.Zero, false
		}
		total = total.Add(v)
	}
	return total, true
}

func checkPeriod(msg *message.Message, rep *Reporter) {
	for _, c := range containers(msg) {
		period := message.Child(c, "FrToDt")
		if period == nil {
			continue
		}
		from, err := message.ParseDateTime(message.ChildText(period, "FrDtTm"))
		if err != nil {
			continue
		}
		to, err := message.ParseDateTime(message.ChildText(period, "ToDtTm"))
		if err != nil {
			continue
		}
		if from.After(to) {
			rep.Errorf(period, CodePeriod, "period start %s is after its end %s",
				message.ChildText(period, "FrDtTm"), message.ChildText(period, "ToDtTm"))
		}
	}
}

func checkEntryCurrency(msg *message.Message, rep *Reporter) {
	for _, c := range containers(msg) {
		accountCcy := message.ChildText(c, "Acct/Ccy")
		for _, entry := range message.Children(c, "Ntry") {
			amt := message.Child(entry, "Amt")
			if amt == nil {
				continue
			}
			entryCcy := amt.SelectAttrValue("Ccy", "")
			if entryCcy == "" {
				continue
			}
			if accountCcy != "" && entryCcy != accountCcy {
				rep.Warnf(amt, CodeCurrency, "entry currency %s differs from account currency %s", entryCcy, accountCcy)
			}
			for _, txAmt := range message.Children(entry, "NtryDtls/TxDtls/Amt") {
				if ccy := txAmt.SelectAttrValue("Ccy", ""); ccy != "" && ccy != entryCcy {
					rep.Errorf(txAmt, CodeCurrency, "transaction currency %s differs from entry currency %s", ccy, entryCcy)
				}
			}
		}
	}
}

func walkElements(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, c := range el.ChildElements() {
		walkElements(c, fn)
	}
}
