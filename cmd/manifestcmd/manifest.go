// Copyright (C) 2022-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.
package manifestcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/dbsync/pkg/application"
	"github.com/luxfi/dbsync/pkg/constants"
	"github.com/luxfi/dbsync/pkg/manifest"
	"github.com/spf13/cobra"
)

var app *application.DBSync

func NewCmd(injectedApp *application.DBSync) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Maintain the local-db artifact manifest",
		Long:  `Operator workflows for the manifest published next to the database dumps`,
		Run: func(cmd *cobra.Command, args []string) {
			err := cmd.Help()
			if err != nil {
				fmt.Println(err)
			}
		},
	}
	app = injectedApp

	cmd.AddCommand(newBumpSeedGenerationCmd())
	cmd.AddCommand(newBumpSchemaVersionCmd())

	return cmd
}

// defaultManifestPath is data/manifest.yaml under the working directory,
// matching where a sync run writes it.
func defaultManifestPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return manifest.PathIn(constants.DataDirName)
	}
	return manifest.PathIn(filepath.Join(cwd, constants.DataDirName))
}
