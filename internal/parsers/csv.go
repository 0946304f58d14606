package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"pos-reconciliation-service/pkg/errors"
)

// encodingSampleLines bounds the UTF-8 check to the head of the file
const encodingSampleLines = 100

// readCSV reads every record of a delimited file
func readCSV(ctx context.Context, path string, config *DatasetConfig) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	}
	defer file.Close()

	if config.ValidateEncoding {
		if err := validateEncoding(file, path); err != nil {
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	reader := csv.NewReader(bufio.NewReader(file))
	configureReader(reader, config)

	var grid [][]string
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, line, err)
		}
		if line%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.ReconciliationError(errors.CodeCancelled, "read "+path, err)
			}
		}
		grid = append(grid, record)
	}

	return grid, nil
}

// configureReader sets up the CSV reader with our configuration
func configureReader(reader *csv.Reader, config *DatasetConfig) {
	reader.Comma = ','
	if config.Delimiter != 0 {
		reader.Comma = config.Delimiter
	}
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Variable number of fields
}

// validateEncoding checks if the file contains valid UTF-8 text
func validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < encodingSampleLines {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeEncodingError, path, lineNum,
				fmt.Errorf("invalid UTF-8 encoding detected")).
				WithSuggestion("save the export as UTF-8 CSV, or as .xlsx, and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	return nil
}
