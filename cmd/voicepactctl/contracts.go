package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	contractStatusFilter string
	contractPhoneFilter  string
	confirmPhone         string
	confirmDecision      string
	transitionStatus     string
	transitionActor      string
)

var contractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "Manage supply contracts",
}

var contractsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contracts, optionally filtered by status or phone",
	RunE:  runContractsList,
}

var contractsGetCmd = &cobra.Command{
	Use:   "get CONTRACT_ID",
	Short: "Show one contract with its parties",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractsGet,
}

var contractsStatusCmd = &cobra.Command{
	Use:   "status CONTRACT_ID",
	Short: "Show confirmation progress for a contract",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractsStatus,
}

var contractsConfirmCmd = &cobra.Command{
	Use:   "confirm CONTRACT_ID",
	Short: "Record a party's confirm or reject decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractsConfirm,
}

var contractsTransitionCmd = &cobra.Command{
	Use:   "transition CONTRACT_ID",
	Short: "Apply an explicit lifecycle transition",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractsTransition,
}

var contractsVerifyCmd = &cobra.Command{
	Use:   "verify CONTRACT_ID",
	Short: "Re-check the contract's content hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractsVerify,
}

func init() {
	contractsListCmd.Flags().StringVar(&contractStatusFilter, "status", "", "Filter by status")
	contractsListCmd.Flags().StringVar(&contractPhoneFilter, "phone", "", "Filter by participating phone number")
	contractsConfirmCmd.Flags().StringVar(&confirmPhone, "phone", "", "Signer phone number (required)")
	contractsConfirmCmd.Flags().StringVar(&confirmDecision, "decision", "confirm", "Decision: confirm or reject")
	_ = contractsConfirmCmd.MarkFlagRequired("phone")
	contractsTransitionCmd.Flags().StringVar(&transitionStatus, "status", "", "Target status (required)")
	contractsTransitionCmd.Flags().StringVar(&transitionActor, "actor", "", "Acting party or operator")
	_ = contractsTransitionCmd.MarkFlagRequired("status")

	contractsCmd.AddCommand(contractsListCmd)
	contractsCmd.AddCommand(contractsGetCmd)
	contractsCmd.AddCommand(contractsStatusCmd)
	contractsCmd.AddCommand(contractsConfirmCmd)
	contractsCmd.AddCommand(contractsTransitionCmd)
	contractsCmd.AddCommand(contractsVerifyCmd)
}

func runContractsList(cmd *cobra.Command, args []string) error {
	client := newClient()

	q := url.Values{}
	if contractStatusFilter != "" {
		q.Set("status", contractStatusFilter)
	}
	if contractPhoneFilter != "" {
		q.Set("phone", contractPhoneFilter)
	}
	path := "/api/v1/contracts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp map[string]any
	if err := client.getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	contracts, _ := resp["contracts"].([]any)
	headers := []string{"ID", "Status", "Type", "Amount", "Currency", "Created"}
	rows := make([][]string, 0, len(contracts))
	for _, c := range contracts {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, []string{
			extractValue(m, "id"),
			extractValue(m, "status"),
			extractValue(m, "type"),
			extractValue(m, "totalAmount"),
			extractValue(m, "currency"),
			extractValue(m, "createdAt"),
		})
	}
	printTable(headers, rows)
	return nil
}

func runContractsGet(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	if err := newClient().getJSON("/api/v1/contracts/"+url.PathEscape(args[0]), &resp); err != nil {
		return err
	}
	if outputFmt == "table" {
		outputFmt = "json"
	}
	return printOutput(resp)
}

func runContractsStatus(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	if err := newClient().getJSON("/api/v1/contracts/"+url.PathEscape(args[0])+"/status", &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	fmt.Printf("Contract: %s\nStatus:   %s\nSigned:   %s of %s\n",
		extractValue(resp, "contractId"),
		extractValue(resp, "status"),
		extractValue(resp, "signed"),
		extractValue(resp, "total"))

	signatures, _ := resp["signatures"].([]any)
	if len(signatures) == 0 {
		return nil
	}
	headers := []string{"Phone", "Status", "Signed At"}
	rows := make([][]string, 0, len(signatures))
	for _, s := range signatures {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, []string{
			extractValue(m, "phoneNumber"),
			extractValue(m, "status"),
			extractValue(m, "signedAt"),
		})
	}
	printTable(headers, rows)
	return nil
}

func runContractsConfirm(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	err := newClient().postJSON("/api/v1/contracts/"+url.PathEscape(args[0])+"/confirm", map[string]any{
		"phone":    confirmPhone,
		"decision": confirmDecision,
	}, &resp)
	if err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(resp)
	}
	fmt.Printf("Signature: %s\nQuorum:    %s\n",
		extractValue(resp, "status"), extractValue(resp, "quorumReached"))
	return nil
}

func runContractsTransition(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	err := newClient().postJSON("/api/v1/contracts/"+url.PathEscape(args[0])+"/transition", map[string]any{
		"status": transitionStatus,
		"actor":  transitionActor,
	}, &resp)
	if err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(resp)
	}
	fmt.Printf("Contract %s is now %s\n",
		extractValue(resp, "contractId"), extractValue(resp, "status"))
	return nil
}

func runContractsVerify(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	if err := newClient().getJSON("/api/v1/contracts/"+url.PathEscape(args[0])+"/verify", &resp); err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(resp)
	}
	fmt.Printf("Contract %s valid: %s\n",
		extractValue(resp, "contractId"), extractValue(resp, "valid"))
	return nil
}
