package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	checkoutContract string
	checkoutPhone    string
	checkoutAmount   float64
	checkoutCurrency string
	releaseRecipient string
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Manage escrow payments",
}

var paymentsCheckoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Charge a payer into escrow for a contract",
	RunE:  runPaymentsCheckout,
}

var paymentsGetCmd = &cobra.Command{
	Use:   "get PAYMENT_ID",
	Short: "Show one payment",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaymentsGet,
}

var paymentsListCmd = &cobra.Command{
	Use:   "list CONTRACT_ID",
	Short: "List a contract's payments",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaymentsList,
}

var paymentsReleaseCmd = &cobra.Command{
	Use:   "release PAYMENT_ID",
	Short: "Pay locked escrow out to the recipient",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaymentsRelease,
}

var paymentsRefundCmd = &cobra.Command{
	Use:   "refund PAYMENT_ID",
	Short: "Return locked escrow to the payer",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaymentsRefund,
}

func init() {
	paymentsCheckoutCmd.Flags().StringVar(&checkoutContract, "contract", "", "Contract ID (required)")
	paymentsCheckoutCmd.Flags().StringVar(&checkoutPhone, "phone", "", "Payer phone number (required)")
	paymentsCheckoutCmd.Flags().Float64Var(&checkoutAmount, "amount", 0, "Amount to charge (required)")
	paymentsCheckoutCmd.Flags().StringVar(&checkoutCurrency, "currency", "KES", "Currency code")
	_ = paymentsCheckoutCmd.MarkFlagRequired("contract")
	_ = paymentsCheckoutCmd.MarkFlagRequired("phone")
	_ = paymentsCheckoutCmd.MarkFlagRequired("amount")
	paymentsReleaseCmd.Flags().StringVar(&releaseRecipient, "recipient", "", "Recipient phone number (required)")
	_ = paymentsReleaseCmd.MarkFlagRequired("recipient")

	paymentsCmd.AddCommand(paymentsCheckoutCmd)
	paymentsCmd.AddCommand(paymentsGetCmd)
	paymentsCmd.AddCommand(paymentsListCmd)
	paymentsCmd.AddCommand(paymentsReleaseCmd)
	paymentsCmd.AddCommand(paymentsRefundCmd)
}

func runPaymentsCheckout(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	err := newClient().postJSON("/api/v1/payments/checkout", map[string]any{
		"contractId":  checkoutContract,
		"phoneNumber": checkoutPhone,
		"amount":      checkoutAmount,
		"currency":    checkoutCurrency,
	}, &resp)
	if err != nil {
		return err
	}
	return printPayment(resp)
}

func runPaymentsGet(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	if err := newClient().getJSON("/api/v1/payments/"+url.PathEscape(args[0]), &resp); err != nil {
		return err
	}
	return printPayment(resp)
}

func runPaymentsList(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	if err := newClient().getJSON("/api/v1/payments/contract/"+url.PathEscape(args[0]), &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	payments, _ := resp["payments"].([]any)
	headers := []string{"ID", "Status", "Amount", "Currency", "Created", "Released"}
	rows := make([][]string, 0, len(payments))
	for _, p := range payments {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, []string{
			extractValue(m, "paymentId"),
			extractValue(m, "status"),
			extractValue(m, "amount"),
			extractValue(m, "currency"),
			extractValue(m, "createdAt"),
			extractValue(m, "releasedAt"),
		})
	}
	printTable(headers, rows)
	return nil
}

func runPaymentsRelease(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	err := newClient().postJSON("/api/v1/payments/"+url.PathEscape(args[0])+"/release", map[string]any{
		"recipientPhone": releaseRecipient,
	}, &resp)
	if err != nil {
		return err
	}
	return printPayment(resp)
}

func runPaymentsRefund(cmd *cobra.Command, args []string) error {
	var resp map[string]any
	err := newClient().postJSON("/api/v1/payments/"+url.PathEscape(args[0])+"/refund", nil, &resp)
	if err != nil {
		return err
	}
	return printPayment(resp)
}

func printPayment(resp map[string]any) error {
	if outputFmt != "table" {
		return printOutput(resp)
	}
	fmt.Printf("Payment:  %s\nContract: %s\nStatus:   %s\nAmount:   %s %s\n",
		extractValue(resp, "paymentId"),
		extractValue(resp, "contractId"),
		extractValue(resp, "status"),
		extractValue(resp, "amount"),
		extractValue(resp, "currency"))
	return nil
}
