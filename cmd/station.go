package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/example/tgvmax-watcher/internal/config"
	"github.com/spf13/cobra"
)

func newStationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "station",
		Short: "Manage the station directory",
	}
	cmd.AddCommand(newStationImportCmd())
	cmd.AddCommand(newStationListCmd())
	return cmd
}

func newStationImportCmd() *cobra.Command {
	var file string

	c := &cobra.Command{
		Use:   "import",
		Short: "Import stations from a JSON file (name + provider ids)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, _, stationRepo, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			n, err := stationRepo.ImportJSON(ctx, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "imported %d stations\n", n)
			return nil
		},
	}

	c.Flags().StringVar(&file, "file", "", "path to the station JSON file")
	_ = c.MarkFlagRequired("file")
	return c
}

func newStationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known stations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, _, stationRepo, err := openRepos(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			sts, err := stationRepo.List(ctx)
			if err != nil {
				return err
			}
			for _, st := range sts {
				fmt.Fprintf(os.Stdout, "%s\tsncf=%s\ttrainline=%s\n", st.Name, st.SncfID, st.TrainlineID)
			}
			return nil
		},
	}
}
