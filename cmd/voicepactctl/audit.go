package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	auditContractFilter string
	auditActorFilter    string
	auditActionFilter   string
	auditPageSize       int
	auditPageToken      string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List audit events, optionally filtered",
	RunE:  runAuditEvents,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify EVENT_ID",
	Short: "Re-check one event's tamper-evidence signature",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

func init() {
	auditEventsCmd.Flags().StringVar(&auditContractFilter, "contract", "", "Filter by contract ID")
	auditEventsCmd.Flags().StringVar(&auditActorFilter, "actor", "", "Filter by actor")
	auditEventsCmd.Flags().StringVar(&auditActionFilter, "action", "", "Filter by action")
	auditEventsCmd.Flags().IntVar(&auditPageSize, "page-size", 0, "Events per page")
	auditEventsCmd.Flags().StringVar(&auditPageToken, "page-token", "", "Continuation token from a previous page")

	auditCmd.AddCommand(auditEventsCmd)
	auditCmd.AddCommand(auditVerifyCmd)
}

func runAuditEvents(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if auditContractFilter != "" {
		q.Set("contractId", auditContractFilter)
	}
	if auditActorFilter != "" {
		q.Set("actor", auditActorFilter)
	}
	if auditActionFilter != "" {
		q.Set("action", auditActionFilter)
	}
	if auditPageSize > 0 {
		q.Set("pageSize", fmt.Sprintf("%d", auditPageSize))
	}
	if auditPageToken != "" {
		q.Set("pageToken", auditPageToken)
	}
	path := "/api/v1/audit/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp map[string]any
	if err := newClient().getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	events, _ := resp["events"].([]any)
	headers := []string{"ID", "Contract", "Action", "Actor", "Created"}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, []string{
			extractValue(m, "id"),
			extractValue(m, "contractId"),
			extractValue(m, "action"),
			extractValue(m, "actor"),
			extractValue(m, "createdAt"),
		})
	}
	printTable(headers, rows)

	if next := extractValue(resp, "nextPageToken"); next != "" {
		fmt.Printf("\nNext page token: %s\n", next)
	}
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	path := "/api/v1/audit/events/" + url.PathEscape(args[0]) + "/verify"
	if err := newClient().getJSON(path, &resp); err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(resp)
	}
	fmt.Printf("Event %s valid: %s\n",
		extractValue(resp, "eventId"), extractValue(resp, "valid"))
	return nil
}
