package shopify

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// OutputPath returns the default import file path of a supplier:
// <dir>/<supplier>/shopify_import_<supplier>_<timestamp>.csv
func OutputPath(dir, supplier string, now time.Time) string {
	name := fmt.Sprintf("shopify_import_%s_%s.csv", supplier, now.Format("20060102_150405"))
	return filepath.Join(dir, supplier, name)
}

// WriteCSV writes the header and rows. Missing cells are written empty.
func WriteCSV(w io.Writer, rows []Row) error {
	header := Header(rows)
	writer := csv.NewWriter(w)

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(header))
	for i, row := range rows {
		for j, col := range header {
			record[j] = row[col]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes rows to path, creating its directory
func WriteFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
