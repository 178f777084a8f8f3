package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/infergate/infergate/internal/config"
	"github.com/infergate/infergate/internal/typ"
)

// BackendCommand manages the backend registry
func BackendCommand(appConfig *config.AppConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Manage registered inference backends",
	}
	cmd.AddCommand(backendAddCommand(appConfig))
	cmd.AddCommand(backendListCommand(appConfig))
	cmd.AddCommand(backendRemoveCommand(appConfig))
	return cmd
}

func backendAddCommand(appConfig *config.AppConfig) *cobra.Command {
	var containerName, servedModel, kind, internalKey string
	var hostPort int
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new backend",
		Long: `Register a new inference backend. The container name is used for
address resolution: when it resolves as a hostname the backend is reached
there on the default inference port, otherwise on loopback via the host
port.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := &typ.Backend{
				Name:          args[0],
				ContainerName: containerName,
				ServedModel:   servedModel,
				HostPort:      hostPort,
				Kind:          typ.BackendKind(kind),
				InternalKey:   internalKey,
				Enabled:       !disabled,
			}
			if backend.Kind != "" && backend.Kind != typ.BackendKindChat && backend.Kind != typ.BackendKindEmbedding {
				return fmt.Errorf("invalid kind %q, expected chat or embedding", kind)
			}
			if err := appConfig.AddBackend(backend); err != nil {
				return err
			}
			fmt.Printf("Backend %s registered (uuid: %s)\n", backend.Name, backend.UUID)
			return nil
		},
	}

	cmd.Flags().StringVar(&containerName, "container", "", "container name the backend runs in (required)")
	cmd.Flags().StringVar(&servedModel, "model", "", "model identifier the backend serves (required)")
	cmd.Flags().IntVar(&hostPort, "port", 0, "published host port for loopback fallback")
	cmd.Flags().StringVar(&kind, "kind", "chat", "backend kind: chat or embedding")
	cmd.Flags().StringVar(&internalKey, "key", "", "backend-specific API key (default: shared internal key)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "register without enabling")
	_ = cmd.MarkFlagRequired("container")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func backendListCommand(appConfig *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			backends := appConfig.ListBackends()
			if len(backends) == 0 {
				fmt.Println("No backends registered.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCONTAINER\tMODEL\tKIND\tPORT\tENABLED")
			for _, b := range backends {
				port := ""
				if b.HostPort > 0 {
					port = fmt.Sprintf("%d", b.HostPort)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
					b.Name, b.ContainerName, b.ServedModel, b.GetKind(), port, b.Enabled)
			}
			return w.Flush()
		},
	}
}

func backendRemoveCommand(appConfig *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name|uuid>",
		Short: "Remove a backend from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appConfig.DeleteBackend(args[0]); err != nil {
				return err
			}
			fmt.Printf("Backend %s removed\n", args[0])
			return nil
		},
	}
}
