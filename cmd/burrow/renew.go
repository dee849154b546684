package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(renewCmd)
	renewCmd.Flags().Int("days", 0, "Renew certificates expiring within this many days (default: certs.renew_before_days)")
}

var renewCmd = &cobra.Command{
	Use:   "renew [LABEL]",
	Short: "Renew certificates that are close to expiry",
	Long: `Renew checks the certificate of LABEL, or of every fully active subdomain
when no label is given, and renews those expiring within --days. nginx is
reloaded once if any certificate changed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		days, _ := cmd.Flags().GetInt("days")
		if !cmd.Flags().Changed("days") {
			days = a.cfg.Certs.RenewBeforeDays
		}

		ctx, cancel := signalContext()
		defer cancel()

		if len(args) == 1 {
			renewed, err := a.rec.RenewLabel(ctx, args[0], days)
			if err != nil {
				return fmt.Errorf("failed to renew %s: %w", a.rec.FullDomain(args[0]), err)
			}
			if renewed {
				fmt.Printf("✓ Certificate renewed: %s\n", a.rec.FullDomain(args[0]))
			} else {
				fmt.Printf("Certificate for %s is not due for renewal\n", a.rec.FullDomain(args[0]))
			}
			return nil
		}

		result, err := a.rec.RenewAll(ctx, days)
		if result != nil {
			fmt.Printf("Checked %d certificate(s)\n", len(result.Checked))
			if len(result.Renewed) > 0 {
				fmt.Printf("✓ Renewed: %s\n", strings.Join(result.Renewed, ", "))
			}
			if len(result.Failed) > 0 {
				fmt.Printf("✗ Failed: %s\n", strings.Join(result.Failed, ", "))
			}
		}
		return err
	},
}
