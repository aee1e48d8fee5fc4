package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
	"github.com/BASIL960/FinalYearProject/internal/driver"
	"github.com/BASIL960/FinalYearProject/internal/output"
	"github.com/BASIL960/FinalYearProject/internal/transport"
)

var requestCmd = &cobra.Command{
	Use:   "request <path>",
	Short: "Send an authenticated request to any endpoint",
	Long: `Send a raw request with the stored bearer token. An expired access token
is renewed and the request retried once, exactly as for the typed commands.
The response body is written to stdout unchanged.`,
	Example: `  compliancectl request /auditor/compliance-records/all
  compliancectl request /authentication/logout/ -X POST -d '{"refresh":"..."}'`,
	Args: cobra.ExactArgs(1),
	RunE: runRequest,
}

func init() {
	rootCmd.AddCommand(requestCmd)

	requestCmd.Flags().StringP("method", "X", http.MethodGet, "HTTP method")
	requestCmd.Flags().StringP("data", "d", "", "request body")
	requestCmd.Flags().String("content-type", "application/json", "content type of --data")
	requestCmd.Flags().Bool("include", false, "print the status line before the body")
}

func runRequest(cmd *cobra.Command, args []string) error {
	method, _ := cmd.Flags().GetString("method")
	data, _ := cmd.Flags().GetString("data")
	contentType, _ := cmd.Flags().GetString("content-type")
	include, _ := cmd.Flags().GetBool("include")

	path := args[0]
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	opts := transport.Options{Method: strings.ToUpper(method)}
	if data != "" {
		opts.Body = []byte(data)
		opts.ContentType = contentType
	}

	resp, err := app.client.Request(cmd.Context(), path, opts)
	if err != nil {
		return err
	}

	if !driver.IsSuccess(resp) {
		retried := transport.Retried(resp)
		payload := driver.DecodeError(resp)
		if resp.StatusCode == http.StatusUnauthorized {
			reason := apierr.ReasonRefreshFailed
			if retried {
				reason = apierr.ReasonRetryRejected
			}
			return &apierr.AuthenticationError{Reason: reason, Payload: payload}
		}
		return &output.CLIError{
			Summary:  fmt.Sprintf("%s %s returned HTTP %d", opts.Method, path, resp.StatusCode),
			Detail:   payload.Headline(),
			ExitCode: output.ExitServerError,
		}
	}
	defer resp.Body.Close()

	w := cmd.OutOrStdout()
	if include {
		fmt.Fprintf(w, "%s %s\n", resp.Proto, resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	return nil
}
