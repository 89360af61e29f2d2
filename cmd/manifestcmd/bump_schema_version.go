// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package manifestcmd

import (
	"github.com/luxfi/dbsync/pkg/manifest"
	"github.com/luxfi/dbsync/pkg/ux"
	"github.com/spf13/cobra"
)

func newBumpSchemaVersionCmd() *cobra.Command {
	var (
		manifestPath string
		sourcePath   string
	)

	cmd := &cobra.Command{
		Use:   "bump-schema-version",
		Short: "Increment the manifest schema version",
		Long: `Increments the manifest's schema version and rewrites the
CurrentSchemaVersion declaration in the named Go source file so the code and
the published manifest move together. Refuses to touch either side when they
already disagree.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			bump, err := manifest.BumpSchemaVersion(manifestPath, sourcePath)
			if err != nil {
				return err
			}
			ux.Default().GreenCheckmarkToUser(
				"Bumped manifest schema version: %d -> %d",
				bump.Previous, bump.Next,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", defaultManifestPath(), "path to the manifest file")
	cmd.Flags().StringVar(&sourcePath, "source", "pkg/manifest/manifest.go", "path to the source file declaring CurrentSchemaVersion")

	return cmd
}
