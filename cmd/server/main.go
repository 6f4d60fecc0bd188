package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"dispense/internal/auth"
	"dispense/internal/config"
	"dispense/internal/db"
	"dispense/internal/store"
	"dispense/internal/validator"

	"github.com/spf13/cobra"
)

var (
	configFile string
	debugLevel int
	port       int
)

var rootCmd = &cobra.Command{
	Use:           "dispsrv",
	Short:         "Club dispense and accounting server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the protocol server (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var passwdCmd = &cobra.Command{
	Use:   "passwd USERNAME",
	Short: "Set a user's dispense password, read from standard input",
	Args:  cobra.ExactArgs(1),
	RunE:  runPasswd,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "configfile", "f", defaultConfigFile(), "Path to the TOML config file")
	rootCmd.PersistentFlags().CountVarP(&debugLevel, "debug", "d", "Increase debug level (repeatable)")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "Protocol listen port (overrides config)")
	rootCmd.AddCommand(serveCmd, passwdCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("dispsrv: %v", err)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("debug") {
		cfg.DebugLevel = debugLevel
	}
	if cmd.Flags().Changed("port") {
		cfg.ServerPort = port
	}
	return cfg, cfg.Validate()
}

func runPasswd(cmd *cobra.Command, args []string) error {
	username := args[0]
	if err := validator.ValidateUsername(username); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "New password for %s: ", username)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if err := validator.ValidatePassword(password); err != nil {
		return err
	}

	database, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()
	ctx := context.Background()
	if _, err := db.Migrate(ctx, database); err != nil {
		return err
	}
	accounts := store.NewAccountStore(database)
	switch _, err := accounts.GetByName(ctx, username); {
	case errors.Is(err, sql.ErrNoRows):
		log.Printf("no account named %s yet; it is created on first use", username)
	case err != nil:
		return fmt.Errorf("look up account: %w", err)
	}
	creds := store.NewCredentialStore(database)
	if err := creds.SetSecretKey(ctx, username, auth.HashPassword(username, password)); err != nil {
		return fmt.Errorf("store key: %w", err)
	}
	log.Printf("password updated for %s", username)
	return nil
}

func defaultConfigFile() string {
	if path := os.Getenv("DISPENSE_CONFIG"); path != "" {
		return path
	}
	return "dispsrv.conf"
}
