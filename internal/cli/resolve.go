package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/g1mliii/compact-games-sub000/internal/cover"
	"github.com/g1mliii/compact-games-sub000/internal/logging"
)

// NewResolveCmd creates the resolve command.
func NewResolveCmd() *cobra.Command {
	var (
		name       string
		platform   string
		credential string
	)

	cmd := &cobra.Command{
		Use:   "resolve <install-path>",
		Short: "Resolve the cover image for one game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := NewCLI()
			if err != nil {
				return err
			}

			gamePath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("invalid install path: %w", err)
			}
			if name == "" {
				name = filepath.Base(gamePath)
			}
			if credential == "" {
				credential = cli.Config.Catalog.Credential
			}

			ctx := logging.WithContext(cmd.Context(), cli.Log)
			result := cli.Resolver.Resolve(ctx, cover.GameRecord{
				Path:     gamePath,
				Name:     name,
				Platform: platform,
			}, credential)

			if !result.Found() {
				fmt.Println("no cover found")
				return nil
			}
			fmt.Printf("cover: %s\n", result.Locator)
			fmt.Printf("tier:  %s\n", result.Tier)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name for catalog lookups (default: directory name)")
	cmd.Flags().StringVar(&platform, "platform", "", "Platform tag, e.g. steam, gog, epic")
	cmd.Flags().StringVar(&credential, "credential", "", "Remote catalog credential (default: from config)")

	return cmd
}
