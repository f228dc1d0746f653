package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"governance-backend/internal/config"
	"governance-backend/pkg/database"
	"governance-backend/pkg/database/migrations"
	"governance-backend/pkg/logger"

	"github.com/spf13/cobra"
)

const programName = "governance-backup"

var globalFlags = struct {
	yes bool
}{}

// openManager 加载配置并连接数据库
func openManager() *database.BackupManager {
	logger.Init(logger.DefaultConfig())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config: ", err)
		os.Exit(1)
	}
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database: ", err)
		os.Exit(1)
	}
	if err := migrations.InitTables(db); err != nil {
		logger.Error("Failed to init tables: ", err)
		os.Exit(1)
	}
	return database.NewBackupManager(db)
}

// confirm 交互确认，--yes跳过
func confirm(prompt, expected string) bool {
	if globalFlags.yes {
		return true
	}
	fmt.Print(prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line) == expected
}

func backupCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export governance ledger, users and notification data to JSON",
		Run: func(cmd *cobra.Command, args []string) {
			if file == "" {
				file = fmt.Sprintf("./backups/governance_backup_%s.json", time.Now().Format("20060102_150405"))
			}
			bm := openManager()
			if err := bm.CreateBackup(cmd.Context(), file); err != nil {
				fmt.Printf("Backup failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Backup created successfully: %s\n", file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "backup file path")
	return cmd
}

func restoreCommand() *cobra.Command {
	var (
		file      string
		clearData bool
		conflict  string
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore from a backup file (stop the server first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			action := database.ConflictAction(conflict)
			switch action {
			case database.ConflictSkip, database.ConflictReplace, database.ConflictError:
			default:
				return fmt.Errorf("unsupported conflict strategy %q", conflict)
			}

			fmt.Printf("Restoring data from backup: %s\n", file)
			if clearData {
				fmt.Println("Warning: existing data will be cleared")
			}
			fmt.Printf("Conflict strategy: %s\n", conflict)
			if !confirm("Continue? (y/N): ", "y") {
				fmt.Println("Operation cancelled")
				return nil
			}

			bm := openManager()
			if err := bm.RestoreBackup(cmd.Context(), file, database.RestoreOptions{
				ClearExisting: clearData,
				OnConflict:    action,
			}); err != nil {
				fmt.Printf("Restore failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Data restored successfully")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "backup file path")
	cmd.Flags().BoolVar(&clearData, "clear", false, "clear existing data before restore")
	cmd.Flags().StringVar(&conflict, "conflict", string(database.ConflictSkip), "conflict strategy: skip|replace|error")
	return cmd
}

func validateCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a backup file and its event links",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			logger.Init(logger.DefaultConfig())
			if err := database.NewBackupManager(nil).ValidateBackup(file); err != nil {
				fmt.Printf("Backup file validation failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Backup file validated successfully")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "backup file path")
	return cmd
}

func infoCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show backup metadata and row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			info, err := database.NewBackupManager(nil).GetBackupInfo(file)
			if err != nil {
				fmt.Printf("Failed to read backup file info: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Version: %s\n", info.Version)
			fmt.Printf("Created at: %s\n", info.Timestamp.Format("2006-01-02 15:04:05"))
			names := make([]string, 0, len(info.Counts))
			for name := range info.Counts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-26s %d\n", name, info.Counts[name])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "backup file path")
	return cmd
}

func resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete all governance, user and notification rows (dangerous)",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Warning: this operation deletes all governance data, including the event log!")
			if !confirm("Please enter 'RESET' to confirm: ", "RESET") {
				fmt.Println("Operation cancelled")
				return
			}
			bm := openManager()
			if err := bm.Reset(cmd.Context()); err != nil {
				fmt.Printf("Reset failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Database reset successfully")
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Governance database backup and restore tool",
	}
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.yes, "yes", "y", false, "skip confirmation prompts")
	rootCmd.AddCommand(
		backupCommand(),
		restoreCommand(),
		validateCommand(),
		infoCommand(),
		resetCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
