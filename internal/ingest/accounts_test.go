package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"fraudulert-backend/internal/storage"
)

func newTestIngestor(t *testing.T) (*AccountIngestor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAccountIngestor(storage.NewStorage(sqlx.NewDb(db, "sqlmock"))), mock
}

const csvHeader = "id,current_age,birth_year,birth_month,gender,address,credit_score\n"

func TestIngestAccountsPartialSuccess(t *testing.T) {
	ing, mock := newTestIngestor(t)

	csv := csvHeader +
		"acc-1,40,1985,6,F,12 Main St,700\n" +
		"acc-2,31,1994,2,M,9 Side St,650\n" +
		"acc-3,,1990,1,F,3 Oak St,710\n" + // missing current_age
		"acc-4,abc,1991,4,M,4 Elm St,620\n" + // non-integer age
		"acc-5,55,1970,9,F,5 Pine St,800\n" +
		"acc-6,,1992,5,,6 Fir St,640\n" // missing current_age and gender

	// Three valid rows in file order; acc-5 hits an id conflict.
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 0))

	report, err := ing.IngestAccounts(context.Background(), strings.NewReader(csv), "admin-1")
	if err != nil {
		t.Fatalf("IngestAccounts: %v", err)
	}

	if report.TotalRecords != 6 {
		t.Fatalf("total: want 6, got %d", report.TotalRecords)
	}
	if report.Inserted != 2 {
		t.Fatalf("inserted: want 2, got %d", report.Inserted)
	}
	if report.Conflicts != 1 {
		t.Fatalf("conflicts: want 1, got %d", report.Conflicts)
	}
	// One entry per failing row, even when several fields fail.
	if len(report.Errors) != 3 {
		t.Fatalf("errors: want 3, got %d (%+v)", len(report.Errors), report.Errors)
	}

	// Error rows are reported in file order with field attribution.
	if report.Errors[0].Line != 4 || report.Errors[0].Field != "current_age" {
		t.Fatalf("unexpected first error: %+v", report.Errors[0])
	}
	if report.Errors[1].Line != 5 || report.Errors[1].Field != "current_age" {
		t.Fatalf("unexpected second error: %+v", report.Errors[1])
	}
	if report.Errors[2].Line != 7 || report.Errors[2].Field != "current_age,gender" {
		t.Fatalf("unexpected third error: %+v", report.Errors[2])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIngestAccountsIdempotentReplay(t *testing.T) {
	ing, mock := newTestIngestor(t)

	csv := csvHeader +
		"acc-1,40,1985,6,F,12 Main St,700\n" +
		"acc-2,31,1994,2,M,9 Side St,650\n"

	// Every id already present: all conflicts, zero errors.
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 0))

	report, err := ing.IngestAccounts(context.Background(), strings.NewReader(csv), "admin-1")
	if err != nil {
		t.Fatalf("IngestAccounts: %v", err)
	}
	if report.Inserted != 0 || report.Conflicts != 2 || len(report.Errors) != 0 {
		t.Fatalf("replay must be conflict-only: %+v", report)
	}
}

func TestIngestAccountsMissingHeader(t *testing.T) {
	ing, _ := newTestIngestor(t)

	_, err := ing.IngestAccounts(context.Background(), strings.NewReader(""), "admin-1")
	if err == nil {
		t.Fatal("expected header read error")
	}
}

func TestIngestAccountsInsertFailureReported(t *testing.T) {
	ing, mock := newTestIngestor(t)

	csv := csvHeader + "acc-1,40,1985,6,F,12 Main St,700\n"

	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(context.DeadlineExceeded)

	report, err := ing.IngestAccounts(context.Background(), strings.NewReader(csv), "admin-1")
	if err != nil {
		t.Fatalf("batch must not abort on a row failure: %v", err)
	}
	if report.Inserted != 0 || len(report.Errors) != 1 {
		t.Fatalf("row failure must be reported: %+v", report)
	}
}
