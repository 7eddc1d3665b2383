package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wpsteward/steward/pkg/client"
	"github.com/wpsteward/steward/pkg/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Submit and inspect tasks",
}

var taskSubmitCmd = &cobra.Command{
	Use:   "submit <endpoint>",
	Short: "Submit a task to an API endpoint",
	Long: `Submit a task to one of the /tasks/... endpoints, for example:

  steward task submit /tasks/wp-status --host wp1.example.com --password secret
  steward task submit /tasks/update --host wp1.example.com --key ~/.ssh/id_ed25519 --wait`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		sub, err := submissionFromFlags(cmd)
		if err != nil {
			return err
		}

		resp, err := c.Submit(cmd.Context(), args[0], sub)
		if err != nil {
			return err
		}
		fmt.Printf("Task %s %s\n", resp.TaskID, resp.Status)

		wait, _ := cmd.Flags().GetBool("wait")
		if !wait {
			return nil
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Minute)
		defer cancel()
		status, err := c.WaitTask(ctx, resp.TaskID, 2*time.Second)
		if err != nil {
			return err
		}
		return printTask(status)
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the state and result of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		status, err := c.Task(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printTask(status)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify SSH access and open a server-side session",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := clientFromFlags(cmd)
		if err != nil {
			return err
		}
		sub, err := submissionFromFlags(cmd)
		if err != nil {
			return err
		}
		resp, err := c.Login(cmd.Context(), sub.Site)
		if err != nil {
			return err
		}
		fmt.Printf("Site %s verified\n", resp.SiteID)
		if resp.Uname != "" {
			fmt.Printf("  %s\n", resp.Uname)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run backups, optionally downloading the artefact",
}

var backupDBCmd = &cobra.Command{
	Use:   "db",
	Short: "Back up the site database",
	RunE:  func(cmd *cobra.Command, args []string) error { return runBackup(cmd, "/tasks/backup/db") },
}

var backupContentCmd = &cobra.Command{
	Use:   "content",
	Short: "Back up the wp-content directory",
	RunE:  func(cmd *cobra.Command, args []string) error { return runBackup(cmd, "/tasks/backup/content") },
}

func runBackup(cmd *cobra.Command, endpoint string) error {
	c, err := clientFromFlags(cmd)
	if err != nil {
		return err
	}
	sub, err := submissionFromFlags(cmd)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		resp, err := c.Submit(cmd.Context(), endpoint, sub)
		if err != nil {
			return err
		}
		fmt.Printf("Task %s %s\n", resp.TaskID, resp.Status)
		return nil
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := c.DownloadBackup(cmd.Context(), endpoint, sub, f); err != nil {
		os.Remove(out)
		return err
	}
	fmt.Printf("Saved %s\n", out)
	return nil
}

func clientFromFlags(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("reset-token")

	opts := []client.Option{}
	if token != "" {
		opts = append(opts, client.WithResetToken(token))
	}
	return client.NewClient(server, opts...), nil
}

// siteFromYAML reads a site descriptor file using the same field names
// as API submissions.
func siteFromYAML(path string) (types.SiteRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.SiteRecord{}, err
	}
	var fields map[string]any
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return types.SiteRecord{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	blob, err := json.Marshal(fields)
	if err != nil {
		return types.SiteRecord{}, err
	}
	var site types.SiteRecord
	if err := json.Unmarshal(blob, &site); err != nil {
		return types.SiteRecord{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return site, nil
}

func submissionFromFlags(cmd *cobra.Command) (client.Submission, error) {
	site := types.SiteRecord{}
	if path, _ := cmd.Flags().GetString("site-file"); path != "" {
		var err error
		if site, err = siteFromYAML(path); err != nil {
			return client.Submission{}, err
		}
	}
	// Flags override the site file.
	setString := func(name string, dst *string) {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			*dst = v
		}
	}
	setString("host", &site.Host)
	setString("password", &site.Password)
	setString("sudo-password", &site.SudoPassword)
	setString("key", &site.KeyPath)
	setString("wp-path", &site.WPPath)
	setString("db-name", &site.DBName)
	setString("db-user", &site.DBUser)
	setString("db-pass", &site.DBPass)
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		site.Port = port
	}

	args := types.Args{}
	pairs, _ := cmd.Flags().GetStringArray("arg")
	for _, pair := range pairs {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			return client.Submission{}, fmt.Errorf("invalid --arg %q, want key=value", pair)
		}
		args[k] = v
	}

	email, _ := cmd.Flags().GetString("report-email")
	return client.Submission{Site: site, Args: args, ReportEmail: email}, nil
}

func printTask(status *client.TaskStatus) error {
	fmt.Printf("Task %s: %s\n", status.TaskID, status.State)
	if status.Info != "" {
		fmt.Printf("  %s\n", status.Info)
	}
	if status.Result != nil {
		pretty, err := json.MarshalIndent(status.Result, "  ", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("  %s\n", pretty)
	}
	return nil
}

func addSiteFlags(cmd *cobra.Command) {
	cmd.Flags().String("site-file", "", "YAML site descriptor (flags override)")
	cmd.Flags().String("host", "", "Target host")
	cmd.Flags().Int("port", 0, "SSH port (default 22)")
	cmd.Flags().String("password", "", "SSH password")
	cmd.Flags().String("sudo-password", "", "Sudo password (defaults to SSH password)")
	cmd.Flags().String("key", "", "Path to SSH private key")
	cmd.Flags().String("wp-path", "", "WordPress install directory")
	cmd.Flags().String("db-name", "", "Database name")
	cmd.Flags().String("db-user", "", "Database user")
	cmd.Flags().String("db-pass", "", "Database password")
	cmd.Flags().StringArray("arg", nil, "Handler argument as key=value (repeatable)")
	cmd.Flags().String("report-email", "", "Email the result on completion")
}

func init() {
	for _, cmd := range []*cobra.Command{taskSubmitCmd, taskStatusCmd, loginCmd, backupDBCmd, backupContentCmd} {
		cmd.Flags().String("server", "http://localhost:8000", "Steward API address")
		cmd.Flags().String("reset-token", "", "Token for destructive endpoints")
	}
	for _, cmd := range []*cobra.Command{taskSubmitCmd, loginCmd, backupDBCmd, backupContentCmd} {
		addSiteFlags(cmd)
	}
	taskSubmitCmd.Flags().Bool("wait", false, "Block until the task terminates")
	backupDBCmd.Flags().String("out", "", "Download the artefact to this file")
	backupContentCmd.Flags().String("out", "", "Download the artefact to this file")

	taskCmd.AddCommand(taskSubmitCmd)
	taskCmd.AddCommand(taskStatusCmd)
	backupCmd.AddCommand(backupDBCmd)
	backupCmd.AddCommand(backupContentCmd)
}
