package models

// Account is an externally supplied client record. IDs come from the
// upstream file, not from the database.
type Account struct {
	ID          string   `json:"id" db:"id"`
	CurrentAge  int      `json:"current_age" db:"current_age"`
	BirthYear   int      `json:"birth_year" db:"birth_year"`
	BirthMonth  int      `json:"birth_month" db:"birth_month"`
	Gender      string   `json:"gender" db:"gender"`
	Address     string   `json:"address" db:"address"`
	CreditScore int      `json:"credit_score" db:"credit_score"`
	RiskScore   *float64 `json:"risk_score,omitempty" db:"risk_score"`
	IsActive    bool     `json:"is_active" db:"is_active"`
	CreatedBy   string   `json:"created_by" db:"created_by"`
}

// RowError describes a single rejected row in a batch upload.
type RowError struct {
	Line  int    `json:"line"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

// IngestReport is the partial-success result of a batch ingestion.
// Conflict skips and validation failures are reported separately and are
// never folded into one count.
type IngestReport struct {
	TotalRecords int        `json:"total_records"`
	Inserted     int        `json:"inserted"`
	Conflicts    int        `json:"conflicts"`
	Errors       []RowError `json:"errors"`
}
