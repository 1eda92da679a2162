package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sandesh-mail/sandesh/config"
	"github.com/sandesh-mail/sandesh/db"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "create-account":
		handleCreateAccount()
	case "change-password":
		handleChangePassword()
	case "update-profile":
		handleUpdateProfile()
	case "get-namespace":
		handleGetNamespace()
	case "set-namespace":
		handleSetNamespace()
	case "send":
		handleSend()
	case "list-messages":
		handleListMessages()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`Sandesh Admin Tool

Usage:
  sandesh-admin <command> [options]

Commands:
  create-account   Create a new account with its default mailboxes
  change-password  Change an account's password
  update-profile   Update an account's display name and signature
  get-namespace    Print the current mail namespace
  set-namespace    Change the mail namespace at runtime
  send             Send a message on behalf of an account
  list-messages    List messages in a mailbox, or print one with --id
  help             Show this help message

Examples:
  sandesh-admin create-account --username alice --password secret --display-name "Alice Wonder"
  sandesh-admin update-profile --username alice --signature "Regards, Alice"
  sandesh-admin set-namespace --namespace example-mail
  sandesh-admin send --username alice --to bob@example.com --subject Hi --body "Hello"

Use 'sandesh-admin <command> --help' for more information about a command.
`)
}

// addCommonFlags registers the config and database override flags shared by
// every command.
type commonFlags struct {
	configPath *string
	dbHost     *string
	dbPort     *string
	dbUser     *string
	dbPassword *string
	dbName     *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "config.toml", "Path to TOML configuration file"),
		dbHost:     fs.String("dbhost", "", "Database host (overrides config)"),
		dbPort:     fs.String("dbport", "", "Database port (overrides config)"),
		dbUser:     fs.String("dbuser", "", "Database user (overrides config)"),
		dbPassword: fs.String("dbpassword", "", "Database password (overrides config)"),
		dbName:     fs.String("dbname", "", "Database name (overrides config)"),
	}
}

func loadConfig(fs *flag.FlagSet, flags commonFlags) config.Config {
	cfg, err := config.Load(*flags.configPath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if isFlagSet(fs, "dbhost") {
		cfg.Database.Host = *flags.dbHost
	}
	if isFlagSet(fs, "dbport") {
		cfg.Database.Port = *flags.dbPort
	}
	if isFlagSet(fs, "dbuser") {
		cfg.Database.User = *flags.dbUser
	}
	if isFlagSet(fs, "dbpassword") {
		cfg.Database.Password = *flags.dbPassword
	}
	if isFlagSet(fs, "dbname") {
		cfg.Database.Name = *flags.dbName
	}
	return cfg
}

func openDatabase(ctx context.Context, cfg config.Config) *db.Database {
	database, err := db.NewDatabase(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return database
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	isSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			isSet = true
		}
	})
	return isSet
}
