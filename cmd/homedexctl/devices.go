package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/markdave123-py/Homedex/internal/core"
	db "github.com/markdave123-py/Homedex/internal/core/database"
	"github.com/markdave123-py/Homedex/internal/models"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Import or export the device catalog as YAML",
}

var devicesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every device to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := db.NewDatabaseClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		return exportDevices(cmd.Context(), client, cmd.OutOrStdout())
	},
}

var devicesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Upsert the devices listed in a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		client, err := db.NewDatabaseClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		n, err := importDevices(cmd.Context(), client, f)
		fmt.Fprintf(cmd.OutOrStdout(), "%d devices imported\n", n)
		return err
	},
}

func init() {
	devicesCmd.AddCommand(devicesExportCmd, devicesImportCmd)
	rootCmd.AddCommand(devicesCmd)
}

type catalog struct {
	Devices []models.Device `yaml:"devices"`
}

func exportDevices(ctx context.Context, store core.DbClient, w io.Writer) error {
	devices, err := store.ListDevices(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(catalog{Devices: devices}); err != nil {
		return err
	}
	return enc.Close()
}

func importDevices(ctx context.Context, store core.DbClient, r io.Reader) (int, error) {
	var c catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return 0, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.ID == "" {
			return i, fmt.Errorf("device %d has no id", i+1)
		}
		if d.ManualFiles == nil {
			d.ManualFiles = []string{}
		}
		if err := store.UpsertDevice(ctx, d); err != nil {
			return i, fmt.Errorf("upsert %s: %w", d.ID, err)
		}
	}
	return len(c.Devices), nil
}
