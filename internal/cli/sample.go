package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/omerasipi/Es-Selam-Banko/pkg/camt"
)

// sampleDonors pay a fixed amount on a fixed day every month
var sampleDonors = []struct {
	name   string
	amount string
	day    int
}{
	{"Ahmed Hasani", "50.00", 5},
	{"Fatima Berisha", "25.50", 10},
	{"Emir Kovac", "30.00", 15},
	{"Leyla Demir", "20.00", 25},
}

type sampleOptions struct {
	kind      string
	start     string
	months    int
	iban      string
	currency  string
	messageID string
	output    string
}

func newSampleCommand() *cobra.Command {
	opts := &sampleOptions{}
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a sample statement or notification with donations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := buildSample(opts)
			if err != nil {
				return err
			}
			if opts.output == "" || opts.output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(opts.output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&opts.kind, "type", "t", "statement", "Message type: statement (camt.053) or notification (camt.054)")
	cmd.Flags().StringVar(&opts.start, "month", "2024-01", "First month (YYYY-MM)")
	cmd.Flags().IntVar(&opts.months, "months", 3, "Number of months")
	cmd.Flags().StringVar(&opts.iban, "iban", "CH9300762011623852957", "Account IBAN")
	cmd.Flags().StringVar(&opts.currency, "currency", "CHF", "Account currency")
	cmd.Flags().StringVar(&opts.messageID, "message-id", "", "Message identification (default generated)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default standard output)")
	return cmd
}

func buildSample(opts *sampleOptions) ([]byte, error) {
	first, err := time.Parse("2006-01", opts.start)
	if err != nil {
		return nil, fmt.Errorf("--month must be YYYY-MM: %w", err)
	}
	if opts.months < 1 || opts.months > 24 {
		return nil, fmt.Errorf("--months must be between 1 and 24, got %d", opts.months)
	}
	last := first.AddDate(0, opts.months, -1)

	builderOpts := []camt.Option{
		camt.WithAccount(opts.iban, opts.currency),
		camt.WithAccountName("Es-Selam Association"),
		camt.WithCreationTime(last.Add(18 * time.Hour)),
		camt.WithPeriod(first, last),
	}
	if opts.messageID != "" {
		builderOpts = append(builderOpts, camt.WithMessageID(opts.messageID))
	}

	balance := decimal.NewFromInt(1000)
	if opts.kind == "statement" {
		builderOpts = append(builderOpts, camt.WithBalance("OPBD", balance, camt.Credit, first))
	}

	n := 0
	for m := 0; m < opts.months; m++ {
		month := first.AddDate(0, m, 0)
		for _, d := range sampleDonors {
			n++
			amount := decimal.RequireFromString(d.amount)
			balance = balance.Add(amount)
			builderOpts = append(builderOpts, camt.WithEntry(camt.EntryInput{
				Reference:   fmt.Sprintf("E-%04d", n),
				Amount:      amount,
				Type:        camt.Credit,
				BookingDate: month.AddDate(0, 0, d.day-1),
				DebtorName:  d.name,
				Remittance:  []string{"Monthly donation " + month.Format("01/2006")},
			}))
		}
	}
	if opts.kind == "statement" {
		builderOpts = append(builderOpts, camt.WithBalance("CLBD", balance, camt.Credit, last))
	}

	switch opts.kind {
	case "statement":
		return camt.NewStatement(builderOpts...).Marshal()
	case "notification":
		return camt.NewNotification(builderOpts...).Marshal()
	default:
		return nil, fmt.Errorf("--type must be statement or notification, got %q", opts.kind)
	}
}
