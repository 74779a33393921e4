package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			max_deduction_percentage REAL NOT NULL DEFAULT 40,
			regulator_deduction_cap REAL
		)`,

		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			member_number TEXT NOT NULL,
			national_id TEXT NOT NULL,
			employee_number TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL,
			status TEXT NOT NULL,
			employment_status TEXT NOT NULL,
			monthly_net_salary REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_members_tenant_national
			ON members(tenant_id, national_id)`,
		`CREATE INDEX IF NOT EXISTS idx_members_national ON members(national_id)`,
		`CREATE INDEX IF NOT EXISTS idx_members_tenant ON members(tenant_id)`,

		`CREATE TABLE IF NOT EXISTS member_savings (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			monthly_contribution REAL NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (member_id) REFERENCES members(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_member_savings_member ON member_savings(member_id)`,

		`CREATE TABLE IF NOT EXISTS loans (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			loan_number TEXT NOT NULL,
			principal_amount REAL NOT NULL,
			monthly_installment REAL NOT NULL,
			status TEXT NOT NULL,
			FOREIGN KEY (member_id) REFERENCES members(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id)`,

		`CREATE TABLE IF NOT EXISTS insurance_policies (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			policy_number TEXT NOT NULL,
			monthly_premium REAL NOT NULL,
			status TEXT NOT NULL,
			waiting_period_end DATETIME,
			last_premium_paid_at DATETIME,
			FOREIGN KEY (member_id) REFERENCES members(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_policies_member ON insurance_policies(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_policies_status ON insurance_policies(status)`,

		`CREATE TABLE IF NOT EXISTS merchandise_orders (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			order_number TEXT NOT NULL,
			monthly_installment REAL NOT NULL,
			status TEXT NOT NULL,
			FOREIGN KEY (member_id) REFERENCES members(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_member ON merchandise_orders(member_id)`,

		`CREATE TABLE IF NOT EXISTS deduction_requests (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			batch_number TEXT NOT NULL,
			month INTEGER NOT NULL,
			year INTEGER NOT NULL,
			total_members INTEGER NOT NULL DEFAULT 0,
			total_amount REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			file_ref TEXT NOT NULL DEFAULT '',
			submitted_by TEXT,
			submitted_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,
		// Single-writer guard for generation: at most one open request per
		// tenant-period. The engine's check-then-act alone is not safe under
		// concurrent invocation; this index is.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_open_period
			ON deduction_requests(tenant_id, month, year)
			WHERE status IN ('draft','submitted','processing')`,
		`CREATE INDEX IF NOT EXISTS idx_requests_period ON deduction_requests(tenant_id, year, month)`,

		`CREATE TABLE IF NOT EXISTS deduction_items (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			member_number TEXT NOT NULL,
			national_id TEXT NOT NULL,
			employee_number TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL DEFAULT '',
			current_amount REAL NOT NULL,
			previous_amount REAL NOT NULL DEFAULT 0,
			change_reason TEXT NOT NULL,
			savings REAL NOT NULL DEFAULT 0,
			loan_repayment REAL NOT NULL DEFAULT 0,
			insurance REAL NOT NULL DEFAULT 0,
			merchandise REAL NOT NULL DEFAULT 0,
			is_over_limit INTEGER NOT NULL DEFAULT 0,
			limit_notes TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (request_id) REFERENCES deduction_requests(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_request ON deduction_items(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_member ON deduction_items(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_national ON deduction_items(national_id)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_batches (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			batch_number TEXT NOT NULL,
			month INTEGER NOT NULL,
			year INTEGER NOT NULL,
			deduction_request_id TEXT,
			total_records INTEGER NOT NULL DEFAULT 0,
			matched_records INTEGER NOT NULL DEFAULT 0,
			unmatched_records INTEGER NOT NULL DEFAULT 0,
			variance_records INTEGER NOT NULL DEFAULT 0,
			total_expected REAL NOT NULL DEFAULT 0,
			total_actual REAL NOT NULL DEFAULT 0,
			total_variance REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			journals_posted INTEGER NOT NULL DEFAULT 0,
			processed_by TEXT,
			processed_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			FOREIGN KEY (deduction_request_id) REFERENCES deduction_requests(id)
		)`,
		// One reconciliation per tenant-period, ever. Same shape as the
		// open-request guard: the service checks first, this index decides.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_recon_period
			ON reconciliation_batches(tenant_id, year, month)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_items (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			member_id TEXT,
			member_number TEXT NOT NULL DEFAULT '',
			national_id TEXT NOT NULL DEFAULT '',
			employee_number TEXT NOT NULL DEFAULT '',
			expected_amount REAL NOT NULL DEFAULT 0,
			actual_amount REAL NOT NULL DEFAULT 0,
			variance REAL NOT NULL DEFAULT 0,
			match_status TEXT NOT NULL,
			variance_reason TEXT,
			requires_manual_review INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (batch_id) REFERENCES reconciliation_batches(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recon_items_batch ON reconciliation_items(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recon_items_status ON reconciliation_items(match_status)`,

		`CREATE TABLE IF NOT EXISTS suspense_entries (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			reference_number TEXT NOT NULL,
			reconciliation_batch_id TEXT,
			member_number TEXT NOT NULL DEFAULT '',
			national_id TEXT NOT NULL DEFAULT '',
			employee_number TEXT NOT NULL DEFAULT '',
			amount REAL NOT NULL,
			month INTEGER NOT NULL,
			year INTEGER NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			allocated_to_member_id TEXT,
			allocated_by TEXT,
			allocated_at DATETIME,
			resolution_notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_suspense_status ON suspense_entries(status)`,
		`CREATE INDEX IF NOT EXISTS idx_suspense_tenant ON suspense_entries(tenant_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
