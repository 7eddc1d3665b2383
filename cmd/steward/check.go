package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wpsteward/steward/pkg/probe"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run probes locally without a running server",
}

var checkSSLCmd = &cobra.Command{
	Use:   "ssl <domain>",
	Short: "Check certificate expiry for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checker := &probe.Checker{}
		res := checker.SSLExpiry(args[0])
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.OK {
			os.Exit(1)
		}
		return nil
	},
}

var checkDomainCmd = &cobra.Command{
	Use:   "domain <domain>",
	Short: "Collect WHOIS expiry and certificate expiry for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checker := &probe.Checker{}
		report := checker.Collect(cmd.Context(), args[0])
		if err := printJSON(report); err != nil {
			return err
		}
		if !report.OK {
			os.Exit(1)
		}
		return nil
	},
}

func printJSON(v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

func init() {
	checkCmd.AddCommand(checkSSLCmd)
	checkCmd.AddCommand(checkDomainCmd)
}
