package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/models"
)

type catalogDB struct {
	core.DbClient
	devices []models.Device
}

func (c *catalogDB) ListDevices(ctx context.Context) ([]models.Device, error) {
	return c.devices, nil
}

func (c *catalogDB) UpsertDevice(ctx context.Context, d *models.Device) error {
	c.devices = append(c.devices, *d)
	return nil
}

func TestDevicesExportImport(t *testing.T) {
	src := &catalogDB{devices: []models.Device{
		{ID: "bosch_dishwasher", Name: "Dishwasher", Brand: "Bosch", Room: "Kitchen", ManualFiles: []string{"dw_reference.md"}},
		{ID: "boiler", Name: "Boiler", ManualFiles: []string{}},
	}}

	var buf bytes.Buffer
	require.NoError(t, exportDevices(context.Background(), src, &buf))
	assert.Contains(t, buf.String(), "id: bosch_dishwasher")
	assert.NotContains(t, buf.String(), "created_at")

	dst := &catalogDB{}
	n, err := importDevices(context.Background(), dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, src.devices, dst.devices)
}

func TestImportDevices_MissingID(t *testing.T) {
	in := "devices:\n  - id: fridge\n    name: Fridge\n  - name: Nameless\n"
	dst := &catalogDB{}

	n, err := importDevices(context.Background(), dst, strings.NewReader(in))
	require.Error(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, dst.devices, 1)
	assert.Equal(t, []string{}, dst.devices[0].ManualFiles)
}
