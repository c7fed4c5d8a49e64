package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/anoixa/media-vault/config"
	"github.com/anoixa/media-vault/database/dbcore"
)

// migrateCmd 执行数据库结构迁移后退出
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and exit",
	Run: func(cmd *cobra.Command, args []string) {
		config.InitConfig()

		db, err := dbcore.Open(config.Get())
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer dbcore.Close(db)

		if err := dbcore.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Println("Database migration completed")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
