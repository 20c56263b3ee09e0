package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalambet/bidfetch/internal/api"
	"github.com/kalambet/bidfetch/internal/config"
	"github.com/kalambet/bidfetch/internal/index"
	"github.com/kalambet/bidfetch/internal/jobs"
	"github.com/kalambet/bidfetch/internal/storage"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- scrape jobs ---

// pollInterval is how often --wait asks for job status.
var pollInterval = 2 * time.Second

// submitJob posts body to path, prints the job id and with wait set follows
// the job until it finishes.
func submitJob(cmd *cobra.Command, path string, body any) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := client.post(ctx, path, body, &resp); err != nil {
		return err
	}
	printSuccess("Submitted %s", resp.JobID)

	if wait, _ := cmd.Flags().GetBool("wait"); !wait {
		printStep("Follow with: bidfetch jobs show %s", resp.JobID)
		return nil
	}
	snap, err := waitForJob(ctx, client, resp.JobID, pollInterval)
	if err != nil {
		return err
	}
	renderResults(cmd.OutOrStdout(), snap.Results)
	if snap.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed: %s", snap.ID, snap.Error)
	}
	printSuccess("Job %s completed", snap.ID)
	return nil
}

// waitForJob polls a job until it leaves the processing state, printing each
// new progress line.
func waitForJob(ctx context.Context, client *apiClient, id string, every time.Duration) (jobs.Snapshot, error) {
	var last string
	for {
		var snap jobs.Snapshot
		if err := client.get(ctx, "/jobs/"+url.PathEscape(id), &snap); err != nil {
			return jobs.Snapshot{}, err
		}
		if snap.Progress != "" && snap.Progress != last {
			printStep("%s", snap.Progress)
			last = snap.Progress
		}
		if snap.Status != jobs.StatusProcessing {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-time.After(every):
		}
	}
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <po-number>...",
	Short: "Scrape header and line items for purchase orders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitJob(cmd, "/scrape/fetch", api.OrdersRequest{PONumbers: args})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <po-number>...",
	Short: "Scrape purchase orders and download their artwork",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitJob(cmd, "/scrape/download", api.OrdersRequest{PONumbers: args})
	},
}

func init() {
	fetchCmd.Flags().Bool("wait", false, "wait for the job and print its results")
	downloadCmd.Flags().Bool("wait", false, "wait for the job and print its results")
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect scrape jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var list []jobs.Snapshot
		if err := client.get(cmd.Context(), "/jobs", &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
			return nil
		}
		renderJobs(cmd.OutOrStdout(), list)
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job with its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if wait, _ := cmd.Flags().GetBool("wait"); wait {
			snap, err := waitForJob(cmd.Context(), client, args[0], pollInterval)
			if err != nil {
				return err
			}
			renderResults(cmd.OutOrStdout(), snap.Results)
			return nil
		}

		var snap jobs.Snapshot
		if err := client.get(cmd.Context(), "/jobs/"+url.PathEscape(args[0]), &snap); err != nil {
			return err
		}
		printStatus("Job", "%s (%s)", snap.ID, snap.Kind)
		printStatus("Status", "%s", statusColor(string(snap.Status)))
		printStatus("Progress", "%s", snap.Progress)
		printStatus("Started", "%s", humanize.Time(snap.StartedAt))
		if snap.Error != "" {
			printStatus("Error", "%s", snap.Error)
		}
		if len(snap.Results) > 0 {
			renderResults(cmd.OutOrStdout(), snap.Results)
		}
		return nil
	},
}

func init() {
	jobsShowCmd.Flags().Bool("wait", false, "wait until the job finishes")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
}

// --- orders ---

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Browse stored purchase orders",
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored purchase orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var resp struct {
			Orders []storage.POHeader `json:"orders"`
			Total  int                `json:"total"`
		}
		if err := client.get(cmd.Context(), fmt.Sprintf("/orders?limit=%d&offset=%d", limit, offset), &resp); err != nil {
			return err
		}
		if len(resp.Orders) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No orders found.")
			return nil
		}
		renderOrders(cmd.OutOrStdout(), resp.Orders)
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d order(s)\n", len(resp.Orders), resp.Total)
		return nil
	},
}

var ordersSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search orders by PO number, vendor, company or status",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var orders []storage.POHeader
		path := fmt.Sprintf("/orders/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		if err := client.get(cmd.Context(), path, &orders); err != nil {
			return err
		}
		if len(orders) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
			return nil
		}
		renderOrders(cmd.OutOrStdout(), orders)
		return nil
	},
}

var ordersShowCmd = &cobra.Command{
	Use:   "show <po-number>",
	Short: "Show an order with its line items and download history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var detail api.OrderDetail
		if err := client.get(cmd.Context(), "/orders/"+url.PathEscape(args[0]), &detail); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return printJSON(out, detail)
		}

		fmt.Fprintln(out, colorize(colorBold, "PO "+detail.PONumber))
		for _, f := range [][2]string{
			{"Status", detail.Status},
			{"Company", detail.Company},
			{"Vendor", detail.VendorName},
			{"Ship to", detail.ShipToName},
			{"PO date", detail.PODate},
			{"Ship by", detail.ShipBy},
			{"Cancel date", detail.CancelDate},
			{"Terms", detail.Terms},
		} {
			if f[1] != "" {
				fmt.Fprintf(out, "  %s %s\n", colorize(colorBold, f[0]+":"), f[1])
			}
		}
		if detail.TotalAmount != nil {
			fmt.Fprintf(out, "  %s %s %s\n", colorize(colorBold, "Total:"), humanize.CommafWithDigits(*detail.TotalAmount, 2), detail.Currency)
		}
		if len(detail.Items) > 0 {
			renderLineItems(out, detail.Items)
		}
		if len(detail.Downloads) > 0 {
			renderDownloads(out, detail.Downloads)
		}
		return nil
	},
}

var ordersDeleteCmd = &cobra.Command{
	Use:   "delete [po-number]",
	Short: "Delete an order, or all orders with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		confirm, _ := cmd.Flags().GetBool("confirm")
		if all == (len(args) == 1) {
			return fmt.Errorf("pass either a PO number or --all")
		}
		if all && !confirm {
			printWarning("This will delete ALL stored orders. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if all {
			var resp struct {
				Deleted int64 `json:"deleted"`
			}
			if err := client.delete(cmd.Context(), "/orders", &resp); err != nil {
				return err
			}
			printSuccess("Deleted %d order(s)", resp.Deleted)
			return nil
		}
		if err := client.delete(cmd.Context(), "/orders/"+url.PathEscape(args[0]), nil); err != nil {
			return err
		}
		printSuccess("Deleted order %s", args[0])
		return nil
	},
}

func init() {
	ordersListCmd.Flags().Int("limit", 50, "maximum number of orders to list")
	ordersListCmd.Flags().Int("offset", 0, "number of orders to skip")
	ordersSearchCmd.Flags().Int("limit", 50, "maximum number of results")
	ordersShowCmd.Flags().Bool("json", false, "print the order as JSON")
	ordersDeleteCmd.Flags().Bool("all", false, "delete every stored order")
	ordersDeleteCmd.Flags().Bool("confirm", false, "confirm deleting all orders")
	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersSearchCmd)
	ordersCmd.AddCommand(ordersShowCmd)
	ordersCmd.AddCommand(ordersDeleteCmd)
}

// --- qc report ---

var qcReportCmd = &cobra.Command{
	Use:   "qc-report <po-number>",
	Short: "Download the QC inspection worksheet for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		data, name, err := client.download(cmd.Context(), "/orders/"+url.PathEscape(args[0])+"/qc-report")
		if err != nil {
			return err
		}
		if name == "" {
			name = args[0] + "-qc.xlsx"
		}
		path := filepath.Join(dir, filepath.Base(name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		printSuccess("Saved %s (%s)", path, humanize.Bytes(uint64(len(data))))
		return nil
	},
}

func init() {
	qcReportCmd.Flags().StringP("output", "o", ".", "directory to write the worksheet to")
}

// --- messages ---

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Fetch and browse portal messages",
}

var messagesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Scrape messages received on a date (default today)",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		return submitJob(cmd, "/messages/fetch", api.MessagesRequest{Date: date})
	},
}

var messagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored messages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var msgs []storage.Message
		if err := client.get(cmd.Context(), fmt.Sprintf("/messages?limit=%d", limit), &msgs); err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No messages found.")
			return nil
		}
		renderMessages(cmd.OutOrStdout(), msgs)
		return nil
	},
}

var messagesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var m storage.Message
		if err := client.get(cmd.Context(), "/messages/"+url.PathEscape(args[0]), &m); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  %s\n", colorize(colorBold, m.RefNumber), m.Subject)
		fmt.Fprintf(out, "From %s on %s\n\n", m.Author, m.ReceivedDate)
		body := m.FullDetails
		if body == "" {
			body = m.Comment
		}
		fmt.Fprintln(out, body)
		return nil
	},
}

var messagesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a message, or all messages with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return fmt.Errorf("pass either a message id or --all")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if all {
			var resp struct {
				Deleted int64 `json:"deleted"`
			}
			if err := client.delete(cmd.Context(), "/messages", &resp); err != nil {
				return err
			}
			printSuccess("Deleted %d message(s)", resp.Deleted)
			return nil
		}
		if err := client.delete(cmd.Context(), "/messages/"+url.PathEscape(args[0]), nil); err != nil {
			return err
		}
		printSuccess("Deleted message %s", args[0])
		return nil
	},
}

func init() {
	messagesFetchCmd.Flags().String("date", "", "received date as M/D/YY (default today)")
	messagesFetchCmd.Flags().Bool("wait", false, "wait for the job and print its results")
	messagesListCmd.Flags().Int("limit", 50, "maximum number of messages to list")
	messagesDeleteCmd.Flags().Bool("all", false, "delete every stored message")
	messagesCmd.AddCommand(messagesFetchCmd)
	messagesCmd.AddCommand(messagesListCmd)
	messagesCmd.AddCommand(messagesShowCmd)
	messagesCmd.AddCommand(messagesDeleteCmd)
}

// --- items ---

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect and maintain the item index",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed item numbers",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var resp struct {
			Items []storage.ItemIndexEntry `json:"items"`
			Total int                      `json:"total"`
		}
		if err := client.get(cmd.Context(), fmt.Sprintf("/items?limit=%d&offset=%d", limit, offset), &resp); err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No items found.")
			return nil
		}
		renderItems(cmd.OutOrStdout(), resp.Items)
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d item(s)\n", len(resp.Items), resp.Total)
		return nil
	},
}

// openLocalStore opens the store directly for maintenance commands that
// have no HTTP route.
var openLocalStore = func() (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.Storage.DataDir)
}

// assignAll runs index passes until nothing is left unnumbered.
func assignAll(ctx context.Context, w *index.Worker) (int, error) {
	total := 0
	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
}

var itemsAssignSeqCmd = &cobra.Command{
	Use:   "assign-seq",
	Short: "Assign internal sequence numbers to unnumbered items now",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := assignAll(cmd.Context(), index.NewWorker(store, 0))
		if err != nil {
			return err
		}
		printSuccess("Numbered %d item(s)", n)
		return nil
	},
}

var itemsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-register every scraped item number and fill missing sequence numbers",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		w := index.NewWorker(store, 0)
		added, err := w.Rebuild(cmd.Context())
		if err != nil {
			return err
		}
		numbered, err := assignAll(cmd.Context(), w)
		if err != nil {
			return err
		}
		printSuccess("Registered %d item(s), numbered %d", added, numbered)
		return nil
	},
}

func init() {
	itemsListCmd.Flags().Int("limit", 100, "maximum number of items to list")
	itemsListCmd.Flags().Int("offset", 0, "number of items to skip")
	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsAssignSeqCmd)
	itemsCmd.AddCommand(itemsRebuildCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the portal account",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured portal account",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var p config.Profile
		if err := client.get(cmd.Context(), "/profile", &p); err != nil {
			return err
		}
		printStatus("Username", "%s", p.Username)
		printStatus("Password", "%s", setLabel(p.PasswordSet))
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the portal username and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		if strings.TrimSpace(username) == "" {
			return fmt.Errorf("--username is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.put(cmd.Context(), "/profile", api.ProfileRequest{Username: username, Password: password}, nil); err != nil {
			return err
		}
		printSuccess("Portal account set to %s", username)
		return nil
	},
}

func init() {
	profileSetCmd.Flags().String("username", "", "portal username")
	profileSetCmd.Flags().String("password", "", "portal password (empty keeps the stored one)")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
