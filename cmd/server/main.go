package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/motswedi/deductions/internal/api"
	"github.com/motswedi/deductions/internal/config"
	"github.com/motswedi/deductions/internal/deduction"
	"github.com/motswedi/deductions/internal/domain"
	"github.com/motswedi/deductions/internal/insurance"
	"github.com/motswedi/deductions/internal/reconciliation"
	"github.com/motswedi/deductions/internal/repository"
	"github.com/motswedi/deductions/internal/suspense"
)

func main() {
	cfg := config.Load()

	log.Printf("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	tenantRepo := repository.NewTenantRepo(db)
	memberRepo := repository.NewMemberRepo(db)
	productRepo := repository.NewProductRepo(db)
	requestRepo := repository.NewDeductionRepo(db)
	reconRepo := repository.NewReconciliationRepo(db)
	suspenseRepo := repository.NewSuspenseRepo(db)

	// Create services.
	tenantCache := deduction.NewTenantCache(tenantRepo, cfg.TenantCacheTTL)
	limits := deduction.NewLimitChecker(memberRepo, requestRepo, tenantCache)
	insuranceSvc := insurance.NewService(productRepo, cfg.LapseGraceDays)
	deductionSvc := deduction.NewService(
		memberRepo, productRepo, tenantCache, requestRepo, limits, insuranceSvc, cfg.WorkerLimit,
	)
	reconSvc := reconciliation.NewService(requestRepo, reconRepo, suspenseRepo, memberRepo)
	suspenseSvc := suspense.NewService(suspenseRepo, memberRepo)

	// Seed tenants and members if DB is empty.
	count, err := tenantRepo.Count()
	if err != nil {
		log.Fatalf("Failed to count tenants: %v", err)
	}
	if count == 0 {
		log.Println("Database is empty, seeding from testdata...")
		if err := seedDatabase(tenantRepo, memberRepo, productRepo); err != nil {
			log.Printf("WARNING: Failed to seed database: %v", err)
		}
	} else {
		log.Printf("Database already has %d tenants, skipping seed", count)
	}

	// Create router.
	router := api.NewRouter(
		deductionSvc, reconSvc, suspenseSvc,
		requestRepo, reconRepo, suspenseRepo, tenantRepo,
		cfg.Remittance,
	)

	log.Printf("SACCOS Payroll Deduction Engine")
	log.Printf("Listening on http://localhost:%s", cfg.Port)
	log.Printf("API base: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/deductions/generate")
	log.Printf("  GET    /api/v1/deductions")
	log.Printf("  GET    /api/v1/deductions/{id}/export")
	log.Printf("  POST   /api/v1/deductions/{id}/submit")
	log.Printf("  POST   /api/v1/deductions/{id}/status")
	log.Printf("  POST   /api/v1/reconciliations")
	log.Printf("  POST   /api/v1/reconciliations/{id}/post-journals")
	log.Printf("  GET    /api/v1/suspense")
	log.Printf("  GET    /api/v1/dashboard")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// seedFile mirrors the structure written by testdata/generate.
type seedFile struct {
	Tenants  []domain.Tenant            `json:"tenants"`
	Members  []domain.Member            `json:"members"`
	Savings  []domain.SavingsAccount    `json:"savings"`
	Loans    []domain.Loan              `json:"loans"`
	Policies []domain.InsurancePolicy   `json:"policies"`
	Orders   []domain.MerchandiseOrder  `json:"orders"`
}

func seedDatabase(tenants *repository.TenantRepo, members *repository.MemberRepo, products *repository.ProductRepo) error {
	// Try multiple possible locations for testdata.
	candidates := []string{
		"testdata/seed.json",
		filepath.Join(".", "testdata", "seed.json"),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "seed.json"),
			filepath.Join(dir, "..", "..", "testdata", "seed.json"),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			log.Printf("Loaded seed data from %s", path)
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find seed.json in any candidate path: %w", loadErr)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("unmarshal seed: %w", err)
	}

	for i := range seed.Tenants {
		if err := tenants.Insert(&seed.Tenants[i]); err != nil {
			return fmt.Errorf("insert tenant %s: %w", seed.Tenants[i].Name, err)
		}
	}
	inserted, err := members.BulkInsert(seed.Members)
	if err != nil {
		return fmt.Errorf("bulk insert members: %w", err)
	}
	for i := range seed.Savings {
		if err := products.InsertSavings(&seed.Savings[i]); err != nil {
			return fmt.Errorf("insert savings: %w", err)
		}
	}
	for i := range seed.Loans {
		if err := products.InsertLoan(&seed.Loans[i]); err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
	}
	for i := range seed.Policies {
		if err := products.InsertPolicy(&seed.Policies[i]); err != nil {
			return fmt.Errorf("insert policy: %w", err)
		}
	}
	for i := range seed.Orders {
		if err := products.InsertOrder(&seed.Orders[i]); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}

	log.Printf("Seeded %d tenants, %d members, %d savings, %d loans, %d policies, %d orders",
		len(seed.Tenants), inserted, len(seed.Savings), len(seed.Loans), len(seed.Policies), len(seed.Orders))
	return nil
}
