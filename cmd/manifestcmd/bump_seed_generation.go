// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package manifestcmd

import (
	"fmt"
	"strconv"

	"github.com/luxfi/dbsync/pkg/manifest"
	"github.com/luxfi/dbsync/pkg/ux"
	"github.com/spf13/cobra"
)

func newBumpSeedGenerationCmd() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "bump-seed-generation [chainID]",
		Short: "Increment one chain's seed generation",
		Long: `Increments the seed generation counter for a single chain in the manifest.
Bump the generation after rebuilding that chain's seed data from a fresh
baseline so consumers know to discard their local copy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			chainID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chain id %q: %w", args[0], err)
			}

			bump, err := manifest.BumpSeedGeneration(manifestPath, chainID)
			if err != nil {
				return err
			}
			ux.Default().GreenCheckmarkToUser(
				"Bumped seed generation for chain %d: %d -> %d",
				bump.ChainID, bump.Previous, bump.Next,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", defaultManifestPath(), "path to the manifest file")

	return cmd
}
