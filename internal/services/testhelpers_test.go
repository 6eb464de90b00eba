package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/loopgate/loopgate/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named in-memory database per test so connections in one test share
	// tables without leaking into other tests.
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.App{},
		&models.Provider{},
		&models.Credential{},
		&models.ModelRate{},
		&models.UsageRecord{},
		&models.ModelCall{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return db
}

// recordingMeter captures ReportUsage calls; when failNext is set the next
// call errors instead.
type recordingMeter struct {
	mu       sync.Mutex
	reports  []decimal.Decimal
	failNext bool
}

func (m *recordingMeter) ReportUsage(ctx context.Context, scopeID string, quantity decimal.Decimal, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return "", context.DeadlineExceeded
	}
	m.reports = append(m.reports, quantity)
	return "evt-test", nil
}

func (m *recordingMeter) CreditBalance(ctx context.Context, scopeID string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.NewFromInt(1000), decimal.NewFromInt(1000), nil
}

func (m *recordingMeter) reportCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

func (m *recordingMeter) totalReported() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, q := range m.reports {
		total = total.Add(q)
	}
	return total
}
