package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"fraudulert-backend/internal/models"
	"fraudulert-backend/internal/storage"
)

var requiredColumns = []string{
	"id", "current_age", "birth_year", "birth_month", "gender", "address", "credit_score",
}

var intColumns = map[string]bool{
	"current_age":  true,
	"birth_year":   true,
	"birth_month":  true,
	"credit_score": true,
}

const validateWorkers = 8

// AccountIngestor performs idempotent batch ingestion of externally
// supplied account rows. Rows are validated concurrently; the insert phase
// is serialized per ingestor so concurrent re-uploads of overlapping files
// cannot race the conflict check.
type AccountIngestor struct {
	store    *storage.Storage
	insertMu sync.Mutex
}

func NewAccountIngestor(store *storage.Storage) *AccountIngestor {
	return &AccountIngestor{store: store}
}

type parsedRow struct {
	line    int
	account models.Account
	errs    []models.RowError
}

// IngestAccounts reads a CSV stream and returns a partial-success report.
// A row failing validation is excluded and reported; it never aborts the
// batch. Conflicting ids are skipped and counted apart from errors.
func (ing *AccountIngestor) IngestAccounts(ctx context.Context, r io.Reader, createdBy string) (*models.IngestReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.ToLower(name))] = i
	}

	type rawRow struct {
		line   int
		record []string
	}

	rawCh := make(chan rawRow, validateWorkers)
	parsedCh := make(chan parsedRow, validateWorkers)

	var wg sync.WaitGroup
	for i := 0; i < validateWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range rawCh {
				parsedCh <- validateRow(columns, row.line, row.record, createdBy)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(parsedCh)
	}()

	var total int
	go func() {
		defer close(rawCh)
		line := 1
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			line++
			if err != nil {
				// Malformed line: reported per row, batch continues.
				rawCh <- rawRow{line: line, record: nil}
				continue
			}
			rawCh <- rawRow{line: line, record: record}
		}
	}()

	rows := make([]parsedRow, 0)
	for row := range parsedCh {
		total++
		rows = append(rows, row)
	}

	// Report order follows file order regardless of worker scheduling.
	sort.Slice(rows, func(i, j int) bool { return rows[i].line < rows[j].line })

	report := &models.IngestReport{
		TotalRecords: total,
		Errors:       make([]models.RowError, 0),
	}

	valid := make([]parsedRow, 0, len(rows))
	for _, row := range rows {
		if len(row.errs) > 0 {
			report.Errors = append(report.Errors, row.errs...)
			continue
		}
		valid = append(valid, row)
	}

	ing.insertMu.Lock()
	defer ing.insertMu.Unlock()

	for i := range valid {
		inserted, err := ing.store.InsertAccount(ctx, &valid[i].account)
		if err != nil {
			report.Errors = append(report.Errors, models.RowError{
				Line:  valid[i].line,
				Field: "id",
				Error: fmt.Sprintf("insert %s: %v", valid[i].account.ID, err),
			})
			continue
		}
		if inserted {
			report.Inserted++
		} else {
			report.Conflicts++
		}
	}

	return report, nil
}

func validateRow(columns map[string]int, line int, record []string, createdBy string) parsedRow {
	row := parsedRow{line: line}
	if record == nil {
		row.errs = append(row.errs, models.RowError{Line: line, Error: "malformed csv line"})
		return row
	}

	// All of a row's failures collapse into one report entry, so the
	// error count matches the failing-row count.
	fields := make(map[string]string, len(requiredColumns))
	var missing []string
	for _, name := range requiredColumns {
		idx, ok := columns[name]
		if !ok || idx >= len(record) || strings.TrimSpace(record[idx]) == "" {
			missing = append(missing, name)
			continue
		}
		fields[name] = strings.TrimSpace(record[idx])
	}
	if len(missing) > 0 {
		row.errs = append(row.errs, models.RowError{
			Line:  line,
			Field: strings.Join(missing, ","),
			Error: "missing required field",
		})
		return row
	}

	ints := make(map[string]int, len(intColumns))
	var notInt []string
	for _, name := range requiredColumns {
		if !intColumns[name] {
			continue
		}
		v, err := strconv.Atoi(fields[name])
		if err != nil {
			notInt = append(notInt, name)
			continue
		}
		ints[name] = v
	}
	if len(notInt) > 0 {
		row.errs = append(row.errs, models.RowError{
			Line:  line,
			Field: strings.Join(notInt, ","),
			Error: "not an integer",
		})
		return row
	}

	row.account = models.Account{
		ID:          fields["id"],
		CurrentAge:  ints["current_age"],
		BirthYear:   ints["birth_year"],
		BirthMonth:  ints["birth_month"],
		Gender:      fields["gender"],
		Address:     fields["address"],
		CreditScore: ints["credit_score"],
		IsActive:    true,
		CreatedBy:   createdBy,
	}
	return row
}
