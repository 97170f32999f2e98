package excel

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseBranchPriceRowsCSV(t *testing.T) {
	body := "id_sucursal,precio_venta\n1,350.50\n2,\"1,200\"\n\n3,99\n"
	rows, err := ParseBranchPriceRows("precios.csv", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0].BranchID)
	assert.InDelta(t, 350.50, rows[0].PrecioVenta, 1e-9)
	assert.InDelta(t, 1200.0, rows[1].PrecioVenta, 1e-9, "separador de miles")
	assert.Equal(t, int64(3), rows[2].BranchID)
}

func TestParseBranchPriceRowsHeaderAliases(t *testing.T) {
	body := "Sucursal,Precio\n1,10\n"
	rows, err := ParseBranchPriceRows("export.csv", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 10.0, rows[0].PrecioVenta, 1e-9)
}

func TestParseBranchPriceRowsDuplicateBranchLastWins(t *testing.T) {
	body := "id_sucursal,precio_venta\n1,10\n1,20\n"
	rows, err := ParseBranchPriceRows("precios.csv", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 20.0, rows[0].PrecioVenta, 1e-9)
}

func TestParseBranchPriceRowsErrors(t *testing.T) {
	_, err := ParseBranchPriceRows("precios.csv", strings.NewReader(""))
	assert.Error(t, err, "archivo vacio")

	_, err = ParseBranchPriceRows("precios.csv", strings.NewReader("sucursal,nota\n1,x\n"))
	assert.ErrorContains(t, err, "precio_venta")

	_, err = ParseBranchPriceRows("precios.csv", strings.NewReader("id_sucursal,precio_venta\nabc,10\n"))
	assert.ErrorContains(t, err, "invalid branch id")

	_, err = ParseBranchPriceRows("precios.csv", strings.NewReader("id_sucursal,precio_venta\n1,-5\n"))
	assert.ErrorContains(t, err, "invalid price")

	_, err = ParseBranchPriceRows("precios.csv", strings.NewReader("id_sucursal,precio_venta\n,\n"))
	assert.ErrorContains(t, err, "no valid price rows")
}

func TestParseBranchPriceRowsXLSX(t *testing.T) {
	file := excelize.NewFile()
	sheet := file.GetSheetName(0)
	cells := [][]any{
		{"id_sucursal", "precio_venta"},
		{1, 350.5},
		{2, 365},
	}
	for i, row := range cells {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, file.SetCellValue(sheet, cell, value))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, file.Write(&buf))

	rows, err := ParseBranchPriceRows("precios.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].BranchID)
	assert.InDelta(t, 350.5, rows[0].PrecioVenta, 1e-9)
	assert.Equal(t, int64(2), rows[1].BranchID)
}

func TestParseBranchPriceRowsUnknownExtensionFallsBack(t *testing.T) {
	body := "id_sucursal,precio_venta\n1,10\n"
	rows, err := ParseBranchPriceRows("precios.txt", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = ParseBranchPriceRows("precios.bin", bytes.NewReader([]byte{0x00, 0x01}))
	assert.Error(t, err)
	assert.Equal(t, "unsupported or invalid price file format", err.Error())
}
