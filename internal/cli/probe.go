package cli

import (
	"fmt"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/infergate/infergate/internal/client"
	"github.com/infergate/infergate/internal/config"
	"github.com/infergate/infergate/internal/typ"
)

// ProbeCommand checks backend readiness directly, without going through a
// running management server
func ProbeCommand(appConfig *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [backend]",
		Short: "Probe backend readiness",
		Long: `Probe whether a backend can serve requests right now. Escalates
through /health, /v1/models and a one-token completion until one phase
gives a conclusive answer. With no argument, probes every registered
backend.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := client.NewPool(client.DefaultConnectTimeout)
			defer pool.Close()
			prober := client.NewProber(pool, client.NewResolver(), appConfig.GetInternalKey())

			var backends []*typ.Backend
			if len(args) == 1 {
				backend, err := appConfig.GetBackend(args[0])
				if err != nil {
					return err
				}
				backends = []*typ.Backend{backend}
			} else {
				backends = appConfig.ListBackends()
				if len(backends) == 0 {
					fmt.Println("No backends registered. Add one with 'infergate backend add'.")
					return nil
				}
			}

			results := make([]typ.ReadinessResult, len(backends))
			var wg sync.WaitGroup
			for i, backend := range backends {
				if !backend.Enabled {
					results[i] = typ.ReadinessResult{Status: typ.StatusStopped, Detail: "backend_disabled"}
					continue
				}
				wg.Add(1)
				go func(i int, backend *typ.Backend) {
					defer wg.Done()
					results[i] = prober.Probe(cmd.Context(), backend)
				}(i, backend)
			}
			wg.Wait()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMODEL\tSTATUS\tDETAIL")
			for i, backend := range backends {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					backend.Name, backend.ServedModel, results[i].Status, results[i].Detail)
			}
			return w.Flush()
		},
	}
}
