// Package excel parses the branch price lists that admins upload as
// spreadsheets. One row per sucursal, columns identified by header aliases
// so exports from different tools keep working.
package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"servivent/backend/internal/domain"
)

// ParseBranchPriceRows reads a CSV or XLSX price list and returns one upsert
// record per branch row. Rows without a branch id are skipped; rows with a
// branch id but an invalid price fail the whole file.
func ParseBranchPriceRows(fileName string, reader io.Reader) ([]domain.BranchPriceUpsert, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}

	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(fileName)))
	switch ext {
	case ".csv":
		rows, err := parseCSVRows(data)
		if err != nil {
			return nil, err
		}
		return parseBranchPriceTable(rows)
	case ".xlsx", ".xlsm", ".xls":
		rows, err := parseExcelRows(data)
		if err != nil {
			return nil, err
		}
		return parseBranchPriceTable(rows)
	default:
		if rows, excelErr := parseExcelRows(data); excelErr == nil {
			if parsed, err := parseBranchPriceTable(rows); err == nil {
				return parsed, nil
			}
		}
		if rows, csvErr := parseCSVRows(data); csvErr == nil {
			if parsed, err := parseBranchPriceTable(rows); err == nil {
				return parsed, nil
			}
		}
		return nil, fmt.Errorf("unsupported or invalid price file format")
	}
}

func parseCSVRows(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}
	return rows, nil
}

func parseExcelRows(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}
	return rows, nil
}

func parseBranchPriceTable(rows [][]string) ([]domain.BranchPriceUpsert, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}

	colMap := mapBranchPriceColumns(rows[0])
	branchIdx, ok := colMap["id_sucursal"]
	if !ok {
		return nil, fmt.Errorf("missing required column: id_sucursal")
	}
	priceIdx, ok := colMap["precio_venta"]
	if !ok {
		return nil, fmt.Errorf("missing required column: precio_venta")
	}

	seen := make(map[int64]struct{})
	result := make([]domain.BranchPriceUpsert, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		rawBranch := cleanText(readCell(cells, branchIdx))
		if rawBranch == "" {
			continue
		}
		branchID, err := strconv.ParseInt(rawBranch, 10, 64)
		if err != nil || branchID <= 0 {
			return nil, fmt.Errorf("row %d invalid branch id %q", index+1, rawBranch)
		}
		price, err := parsePriceValue(readCell(cells, priceIdx))
		if err != nil {
			return nil, fmt.Errorf("row %d invalid price: %w", index+1, err)
		}
		// Last row wins when a branch appears twice.
		if _, dup := seen[branchID]; dup {
			for i := range result {
				if result[i].BranchID == branchID {
					result[i].PrecioVenta = price
				}
			}
			continue
		}
		seen[branchID] = struct{}{}
		result = append(result, domain.BranchPriceUpsert{
			BranchID:    branchID,
			PrecioVenta: price,
		})
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("file has no valid price rows")
	}
	return result, nil
}

func mapBranchPriceColumns(header []string) map[string]int {
	aliases := map[string]string{
		"id_sucursal":  "id_sucursal",
		"sucursal":     "id_sucursal",
		"sucursal id":  "id_sucursal",
		"branch":       "id_sucursal",
		"branch id":    "id_sucursal",
		"branch_id":    "id_sucursal",
		"precio_venta": "precio_venta",
		"precio venta": "precio_venta",
		"precio":       "precio_venta",
		"price":        "precio_venta",
		"sell price":   "precio_venta",
		"sell_price":   "precio_venta",
	}
	mapped := make(map[string]int)
	for idx, col := range header {
		normalized := normalizeHeader(col)
		if normalized == "" {
			continue
		}
		canonical, ok := aliases[normalized]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(value string) string {
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.Join(strings.Fields(value), " ")
}

func readCell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func cleanText(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func parsePriceValue(raw string) (float64, error) {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ReplaceAll(value, ",", "")
	if value == "" {
		return 0, fmt.Errorf("value is empty")
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if parsed < 0 {
		return 0, fmt.Errorf("price cannot be negative")
	}
	return parsed, nil
}
