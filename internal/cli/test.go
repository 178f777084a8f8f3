package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/infergate/infergate/internal/client"
	"github.com/infergate/infergate/internal/config"
	"github.com/infergate/infergate/internal/typ"
)

// TestCommand runs a functional smoke test against one backend
func TestCommand(appConfig *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run a functional smoke test against a backend",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "chat <backend>",
		Short: "Send one chat completion and validate the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd.Context(), appConfig, args[0], "chat")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "embeddings <backend>",
		Short: "Send one embeddings request and validate the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd.Context(), appConfig, args[0], "embeddings")
		},
	})

	return cmd
}

func runTest(ctx context.Context, appConfig *config.AppConfig, ref, testType string) error {
	backend, err := appConfig.GetBackend(ref)
	if err != nil {
		return err
	}

	pool := client.NewPool(client.DefaultConnectTimeout)
	defer pool.Close()
	harness := client.NewHarness(pool, client.NewResolver(), appConfig.GetInternalKey())

	start := time.Now()
	var exchange *client.Exchange
	switch testType {
	case "chat":
		exchange, err = harness.TestChat(ctx, backend)
	case "embeddings":
		exchange, err = harness.TestEmbeddings(ctx, backend)
	}

	outcome := typ.TestOutcome{
		TestType:  testType,
		LatencyMs: time.Since(start).Milliseconds(),
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	if err != nil {
		outcome.Error = err.Error()
	} else {
		outcome.Success = true
		outcome.Request = exchange.Request
		outcome.Response = exchange.Response
	}

	encoded, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))

	if !outcome.Success {
		return fmt.Errorf("%s test failed for backend %s", testType, backend.Name)
	}
	return nil
}
