package services

import (
	"context"
	"errors"
	"testing"

	"foamcrm/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func stringPtr(s string) *string { return &s }

func uintPtr(u uint) *uint { return &u }

func newCustomerServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Customer{},
		&models.Job{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func TestCustomerService_CreateCustomer(t *testing.T) {
	db := newCustomerServiceTestDB(t)
	logger := logrus.New()
	svc := NewCustomerService(db, logger)

	tests := []struct {
		name    string
		req     *CustomerCreateRequest
		wantErr bool
	}{
		{
			name: "valid customer",
			req: &CustomerCreateRequest{
				Name:  "Dana Whitfield",
				Email: "dana@example.com",
				Phone: "555-0100",
			},
			wantErr: false,
		},
		{
			name: "with all fields",
			req: &CustomerCreateRequest{
				Name:    "Miguel Santos",
				Email:   "miguel@example.com",
				Phone:   "555-0101",
				Address: "14 Birch Lane",
				Notes:   "Referred by Dana",
			},
			wantErr: false,
		},
		{
			name:    "missing name",
			req:     &CustomerCreateRequest{Email: "noname@example.com"},
			wantErr: true,
		},
		{
			name:    "whitespace-only name",
			req:     &CustomerCreateRequest{Name: "   "},
			wantErr: true,
		},
		{
			name: "name is trimmed",
			req: &CustomerCreateRequest{
				Name: "  Priya Raman  ",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customer, err := svc.CreateCustomer(context.Background(), tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateCustomer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if customer.ID == 0 {
					t.Error("expected non-zero ID")
				}
				if customer.Name == "" || customer.Name[0] == ' ' {
					t.Errorf("expected trimmed name, got %q", customer.Name)
				}
			}
		})
	}
}

func TestCustomerService_GetCustomer(t *testing.T) {
	db := newCustomerServiceTestDB(t)
	logger := logrus.New()
	svc := NewCustomerService(db, logger)

	customer, _ := svc.CreateCustomer(context.Background(), &CustomerCreateRequest{
		Name:  "Get Test",
		Email: "gettest@example.com",
	})

	tests := []struct {
		name    string
		id      uint
		wantErr bool
	}{
		{
			name:    "existing customer",
			id:      customer.ID,
			wantErr: false,
		},
		{
			name:    "non-existent customer",
			id:      9999,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := svc.GetCustomer(context.Background(), tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("GetCustomer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("expected ErrNotFound, got %v", err)
				}
				return
			}
			if found.Name != "Get Test" {
				t.Errorf("expected name 'Get Test', got %q", found.Name)
			}
		})
	}
}

func TestCustomerService_ListCustomers(t *testing.T) {
	db := newCustomerServiceTestDB(t)
	logger := logrus.New()
	svc := NewCustomerService(db, logger)

	svc.CreateCustomer(context.Background(), &CustomerCreateRequest{
		Name:  "Avery Thompson",
		Email: "avery@northfoam.com",
	})
	svc.CreateCustomer(context.Background(), &CustomerCreateRequest{
		Name:  "Blake Ortiz",
		Email: "blake@example.com",
	})

	tests := []struct {
		name      string
		req       *CustomerListRequest
		wantCount int
		wantTotal int64
	}{
		{
			name:      "list all",
			req:       &CustomerListRequest{Page: 1, PageSize: 10},
			wantCount: 2,
			wantTotal: 2,
		},
		{
			name:      "search by name",
			req:       &CustomerListRequest{Page: 1, PageSize: 10, Search: "Avery"},
			wantCount: 1,
			wantTotal: 1,
		},
		{
			name:      "search by email",
			req:       &CustomerListRequest{Page: 1, PageSize: 10, Search: "northfoam"},
			wantCount: 1,
			wantTotal: 1,
		},
		{
			name:      "search misses",
			req:       &CustomerListRequest{Page: 1, PageSize: 10, Search: "zzz"},
			wantCount: 0,
			wantTotal: 0,
		},
		{
			name:      "pagination caps page size",
			req:       &CustomerListRequest{Page: 1, PageSize: 1},
			wantCount: 1,
			wantTotal: 2,
		},
		{
			name:      "zero page falls back to first",
			req:       &CustomerListRequest{Page: 0, PageSize: 10},
			wantCount: 2,
			wantTotal: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customers, total, err := svc.ListCustomers(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("ListCustomers failed: %v", err)
			}
			if len(customers) != tt.wantCount {
				t.Errorf("expected %d customers, got %d", tt.wantCount, len(customers))
			}
			if total != tt.wantTotal {
				t.Errorf("expected total %d, got %d", tt.wantTotal, total)
			}
		})
	}
}

func TestCustomerService_ListAllCustomers(t *testing.T) {
	db := newCustomerServiceTestDB(t)
	svc := NewCustomerService(db, logrus.New())

	first, _ := svc.CreateCustomer(context.Background(), &CustomerCreateRequest{Name: "First"})
	second, _ := svc.CreateCustomer(context.Background(), &CustomerCreateRequest{Name: "Second"})

	all, err := svc.ListAllCustomers(context.Background())
	if err != nil {
		t.Fatalf("ListAllCustomers failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(all))
	}
	// id 顺序稳定，备份内容可对比
	if all[0].ID != first.ID || all[1].ID != second.ID {
		t.Errorf("expected id order [%d %d], got [%d %d]", first.ID, second.ID, all[0].ID, all[1].ID)
	}
}

func TestCustomerService_UpdateCustomer(t *testing.T) {
	db := newCustomerServiceTestDB(t)
	logger := logrus.New()
	svc := NewCustomerService(db, logger)

	customer, _ := svc.CreateCustomer(context.Background(), &CustomerCreateRequest{
		Name:  "Update Test",
		Email: "update@example.com",
		Phone: "555-0100",
	})

	tests := []struct {
		name    string
		id      uint
		req     *CustomerUpdateRequest
		wantErr bool
	}{
		{
			name:    "update name",
			id:      customer.ID,
			req:     &CustomerUpdateRequest{Name: stringPtr("Renamed")},
			wantErr: false,
		},
		{
			name:    "blank name rejected",
			id:      customer.ID,
			req:     &CustomerUpdateRequest{Name: stringPtr("  ")},
			wantErr: true,
		},
		{
			name: "update several fields",
			id:   customer.ID,
			req: &CustomerUpdateRequest{
				Email:   stringPtr("new@example.com"),
				Phone:   stringPtr("555-0199"),
				Address: stringPtr("9 Cedar Court"),
				Notes:   stringPtr("Prefers morning calls"),
			},
			wantErr: false,
		},
		{
			name:    "empty update is a no-op",
			id:      customer.ID,
			req:     &CustomerUpdateRequest{},
			wantErr: false,
		},
		{
			name:    "non-existent customer",
			id:      9999,
			req:     &CustomerUpdateRequest{Name: stringPtr("Ghost")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := svc.UpdateCustomer(context.Background(), tt.id, tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("UpdateCustomer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && updated == nil {
				t.Error("expected updated customer, got nil")
			}
		})
	}

	final, err := svc.GetCustomer(context.Background(), customer.ID)
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	if final.Email != "new@example.com" || final.Phone != "555-0199" {
		t.Errorf("updates not persisted: %+v", final)
	}
}

func TestCustomerService_DeleteCustomer(t *testing.T) {
	db := newCustomerServiceTestDB(t)
	svc := NewCustomerService(db, logrus.New())

	customer, _ := svc.CreateCustomer(context.Background(), &CustomerCreateRequest{Name: "Delete Me"})

	if err := svc.DeleteCustomer(context.Background(), customer.ID); err != nil {
		t.Fatalf("DeleteCustomer failed: %v", err)
	}
	if _, err := svc.GetCustomer(context.Background(), customer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.DeleteCustomer(context.Background(), customer.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}
