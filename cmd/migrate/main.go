package main

import (
	"log"
	"os"

	"foamcrm/internal/config"
	"foamcrm/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
	cfg := config.Load()

	// 连接数据库
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.Customer{},
		&models.Job{},
		&models.CompanySettings{},
		&models.Automation{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migration completed successfully!")

	// 创建索引
	log.Println("Creating additional indexes...")

	// 工单表复合索引：状态看板和列表筛选
	db.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_customer_status ON jobs(customer_id, status)")

	// 客户表索引：按名称/邮箱搜索
	db.Exec("CREATE INDEX IF NOT EXISTS idx_customers_name ON customers(name)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_customers_email ON customers(email)")

	// 自动化规则表索引：触发器分发
	db.Exec("CREATE INDEX IF NOT EXISTS idx_automations_trigger_enabled ON automations(trigger_type, is_enabled)")

	log.Println("Additional indexes created successfully!")

	// 插入默认数据
	if len(os.Args) > 1 && os.Args[1] == "--seed" {
		log.Println("Seeding default data...")
		seedDefaultData(db)
		log.Println("Default data seeded successfully!")
	}

	log.Println("Migration process completed!")
}

func seedDefaultData(db *gorm.DB) {
	// 公司信息单行记录
	var settings models.CompanySettings
	if err := db.First(&settings).Error; err != nil {
		settings = models.CompanySettings{
			CompanyName: "North Foam Insulation",
			OwnerName:   "Sam Carter",
			Email:       "office@northfoam.example",
			Phone:       "555-0134",
			Address:     "41 Mill Road, Duluth, MN",
		}
		db.Create(&settings)
		log.Println("Created company settings")
	}

	// 示例客户
	var customer models.Customer
	if err := db.Where("email = ?", "kim@lakesidebuilders.example").First(&customer).Error; err != nil {
		customer = models.Customer{
			Name:    "Lakeside Builders",
			Email:   "kim@lakesidebuilders.example",
			Phone:   "555-0172",
			Address: "980 Shorewood Dr, Duluth, MN",
			Notes:   "General contractor, prefers email quotes",
		}
		db.Create(&customer)
		log.Println("Created sample customer")
	}

	// 示例工单
	var job models.Job
	if err := db.Where("estimate_number = ?", "EST-1001").First(&job).Error; err != nil {
		job = models.Job{
			EstimateNumber: "EST-1001",
			CustomerID:     customer.ID,
			Status:         models.JobStatusEstimate,
			CostsData:      models.CostsData{FinalQuote: 4800},
			CalcData: models.CalcData{
				TotalBoardFeetWithWaste: 6200,
				OCSets:                  0.8,
				CCSets:                  0.4,
			},
		}
		db.Create(&job)
		log.Println("Created sample job")
	}

	// 示例自动化规则：新客户建档后创建跟进任务
	var automation models.Automation
	if err := db.Where("name = ?", "Welcome follow-up").First(&automation).Error; err != nil {
		automation = models.Automation{
			Name:          "Welcome follow-up",
			TriggerType:   models.TriggerNewCustomer,
			TriggerConfig: &models.NewCustomerConfig{},
			Actions: models.ActionList{
				{
					ID:   1,
					Type: models.ActionCreateTask,
					Config: &models.CreateTaskConfig{
						TaskTitle:       "Call new customer",
						TaskDescription: "Introduce the company and confirm the site visit",
					},
				},
			},
			IsEnabled: true,
		}
		db.Create(&automation)
		log.Println("Created sample automation")
	}
}
