package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/health"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check LABEL",
	Short: "Check the backend and the public HTTPS endpoint of a subdomain",
	Long: `Check dials the local backend the virtual host proxies to, then requests
https://LABEL.<base_domain>/ through the public address and reports the
status code and how long the served certificate is still valid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		info, err := a.rec.GetInfo(ctx, args[0])
		if err != nil {
			return err
		}
		if !info.ProxyStatus.Exists {
			return fmt.Errorf("subdomain %s has no virtual host", info.FullDomain)
		}

		checks := []struct {
			name    string
			checker health.Checker
		}{
			{"backend", health.NewTCPChecker(backendAddr(info.ProxyStatus.ProxyTarget, info.Port))},
			{"https", health.NewHTTPChecker("https://" + info.FullDomain + "/")},
		}

		failed := 0
		for _, c := range checks {
			res := c.checker.Check(ctx)
			if res.Healthy {
				fmt.Printf("✓ %-8s %s (%s)\n", c.name, res.Message, res.Duration.Round(time.Millisecond))
				continue
			}
			failed++
			fmt.Printf("✗ %-8s %s\n", c.name, res.Message)
		}

		if failed > 0 {
			return fmt.Errorf("%d check(s) failed for %s", failed, info.FullDomain)
		}
		return nil
	},
}

func backendAddr(target string, port int) string {
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
