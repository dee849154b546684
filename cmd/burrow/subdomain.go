package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/types"
)

func init() {
	rootCmd.AddCommand(defineCmd)
	rootCmd.AddCommand(undefineCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)

	defineCmd.Flags().IntP("port", "p", 0, "Local backend port to proxy to (required)")
	defineCmd.Flags().String("ip", "", "Public address for the DNS record (default: server_ip)")
	defineCmd.Flags().Int("ttl", 0, "DNS record TTL in seconds (default: dns.ttl)")
	defineCmd.Flags().Bool("proxied", false, "Route traffic through the DNS provider's edge")
	defineCmd.Flags().String("email", "", "ACME account email (default: certs.email)")
	defineCmd.Flags().Bool("json", false, "Print the resulting subdomain as JSON")
	_ = defineCmd.MarkFlagRequired("port")

	undefineCmd.Flags().Bool("json", false, "Print the undefine report as JSON")
	infoCmd.Flags().Bool("json", false, "Print as JSON")
	listCmd.Flags().Bool("all", false, "Include partially configured subdomains")
	listCmd.Flags().Bool("json", false, "Print as JSON")
}

// signalContext is cancelled on SIGINT or SIGTERM so an interrupted define still rolls back
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var defineCmd = &cobra.Command{
	Use:   "define LABEL",
	Short: "Provision DNS, certificate and proxy for a subdomain",
	Long: `Define creates or replaces the subdomain LABEL.<base_domain>.

The DNS record is written first, then the certificate is issued once the
record resolves, then the nginx virtual host is written and nginx reloaded.
If any step fails everything created so far is removed.`,
	Example: `  burrow define api --port 3000
  burrow define app --port 8080 --ip 203.0.113.10 --ttl 300`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		ip, _ := cmd.Flags().GetString("ip")
		ttl, _ := cmd.Flags().GetInt("ttl")
		proxied, _ := cmd.Flags().GetBool("proxied")
		email, _ := cmd.Flags().GetString("email")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		cfg := types.DefineConfig{IP: ip, Port: port, TTL: ttl, Email: email}
		if cmd.Flags().Changed("proxied") {
			cfg.Proxied = &proxied
		}

		fmt.Printf("Defining %s...\n", a.rec.FullDomain(args[0]))
		info, err := a.rec.Define(ctx, args[0], cfg)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(info)
		}
		fmt.Printf("✓ Subdomain defined: https://%s\n", info.FullDomain)
		fmt.Printf("  Address: %s\n", info.IP)
		fmt.Printf("  Backend: %s\n", info.ProxyStatus.ProxyTarget)
		if info.CertStatus.Exists {
			fmt.Printf("  Certificate expires: %s (%d days)\n", info.CertStatus.ExpiresAt.Format("2006-01-02"), info.CertStatus.DaysLeft)
		}
		return nil
	},
}

var undefineCmd = &cobra.Command{
	Use:     "undefine LABEL",
	Aliases: []string{"rm"},
	Short:   "Remove the proxy, certificate and DNS record of a subdomain",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		report, err := a.rec.Undefine(ctx, args[0])
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(report)
		}
		for _, s := range report.Steps {
			fmt.Printf("  %-24s %s\n", s.Step, s.Result)
		}
		if warnings := report.Warnings(); len(warnings) > 0 {
			fmt.Printf("⚠ Subdomain %s undefined with %d warning(s)\n", report.FullDomain, len(warnings))
			return nil
		}
		fmt.Printf("✓ Subdomain undefined: %s\n", report.FullDomain)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info LABEL",
	Short: "Show the observed state of a subdomain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.rec.GetInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(info)
		}

		fmt.Printf("Subdomain: %s\n", info.FullDomain)
		fmt.Printf("  Fully active: %v\n", info.FullyActive)
		fmt.Printf("  DNS:   %s\n", present(info.DNSStatus.Exists))
		if r := info.DNSStatus.Record; r != nil {
			fmt.Printf("    %s %s ttl=%d proxied=%v\n", r.Type, r.Content, r.TTL, r.Proxied)
		}
		fmt.Printf("  Cert:  %s\n", present(info.CertStatus.Exists))
		if info.CertStatus.Exists {
			fmt.Printf("    expires %s (%d days left)\n", info.CertStatus.ExpiresAt.Format("2006-01-02"), info.CertStatus.DaysLeft)
		}
		fmt.Printf("  Proxy: %s\n", present(info.ProxyStatus.Exists))
		if info.ProxyStatus.Exists {
			fmt.Printf("    -> %s enabled=%v\n", info.ProxyStatus.ProxyTarget, info.ProxyStatus.Enabled)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List subdomains under the base domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var infos []*types.SubdomainInfo
		if all {
			infos, err = a.rec.ListAll(cmd.Context())
		} else {
			infos, err = a.rec.List(cmd.Context())
		}
		if err != nil {
			return err
		}

		if asJSON {
			if infos == nil {
				infos = []*types.SubdomainInfo{}
			}
			return printJSON(infos)
		}
		if len(infos) == 0 {
			fmt.Println("No subdomains found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tDOMAIN\tIP\tPORT\tDNS\tCERT\tPROXY\tDAYS LEFT")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%d\n",
				info.Label, info.FullDomain, info.IP, info.Port,
				mark(info.DNSStatus.Exists), mark(info.CertStatus.Exists), mark(info.ProxyStatus.Exists),
				info.CertStatus.DaysLeft)
		}
		return w.Flush()
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable LABEL",
	Short: "Enable the virtual host of a subdomain and reload nginx",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggle(cmd, args[0], true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable LABEL",
	Short: "Disable the virtual host of a subdomain without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggle(cmd, args[0], false)
	},
}

func toggle(cmd *cobra.Command, label string, enable bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	fullDomain := a.rec.FullDomain(label)

	if enable {
		err = a.proxy.Enable(ctx, fullDomain)
	} else {
		err = a.proxy.Disable(ctx, fullDomain)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", fullDomain, err)
	}
	if err := a.proxy.Reinitialize(ctx); err != nil {
		return fmt.Errorf("failed to reload proxy: %w", err)
	}

	state := "disabled"
	if enable {
		state = "enabled"
	}
	fmt.Printf("✓ Virtual host %s: %s\n", state, fullDomain)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func present(ok bool) string {
	if ok {
		return "present"
	}
	return "absent"
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "-"
}
