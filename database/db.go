package database

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func SetupDatabase(
	dbBackend string,
	dbDSN string,
	debug bool,
) *gorm.DB {
	var dialector gorm.Dialector
	switch dbBackend {
	case "sqlite":
		dialector = sqlite.Open(dbDSN)
	case "postgres":
		dialector = postgres.Open(dbDSN)
	default:
		panic(fmt.Sprintf("Unsupported database backend: %s", dbBackend))
	}

	config := &gorm.Config{}
	if !debug {
		config.Logger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}

	stmt := &gorm.Statement{DB: db}
	for i, table := range Tabels {
		stmt.Parse(table)
		tableName := stmt.Schema.Table
		log.Println(fmt.Sprintf("Migrating table (%v/%v): %v", i+1, len(Tabels), tableName))
		err = db.AutoMigrate(table)
		if err != nil {
			panic(fmt.Sprintf("Failed to migrate table: %v", err))
		}
	}

	return db
}
