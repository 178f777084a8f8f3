package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infergate/infergate/internal/auth"
	"github.com/infergate/infergate/internal/config"
)

// TokenCommand generates an API key for the management API
func TokenCommand(appConfig *config.AppConfig) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a management API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			jwtManager := auth.NewJWTManager(appConfig.GetJWTSecret())
			key, err := jwtManager.GenerateAPIKey(role)
			if err != nil {
				return fmt.Errorf("failed to generate API key: %w", err)
			}
			fmt.Println(key)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "user", "role claim embedded in the key")
	return cmd
}
