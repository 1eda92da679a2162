package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func handleCreateAccount() {
	fs := flag.NewFlagSet("create-account", flag.ExitOnError)
	flags := addCommonFlags(fs)

	username := fs.String("username", "", "Username for the new account (required)")
	password := fs.String("password", "", "Password for the new account (required)")
	displayName := fs.String("display-name", "", "Display name shown on outgoing mail")
	isAdmin := fs.Bool("admin", false, "Grant the account admin privileges")

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *username == "" {
		fmt.Printf("Error: --username is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	if *password == "" {
		fmt.Printf("Error: --password is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, flags)

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	ctx := context.Background()
	database := openDatabase(ctx, cfg)
	defer database.Close()

	account, err := database.CreateAccount(ctx, *username, string(hash), *displayName, *isAdmin)
	if err != nil {
		log.Fatalf("Failed to create account: %v", err)
	}

	fmt.Printf("Successfully created account %s (id %d)\n", account.Username, account.ID)
}

func handleChangePassword() {
	fs := flag.NewFlagSet("change-password", flag.ExitOnError)
	flags := addCommonFlags(fs)

	username := fs.String("username", "", "Username of the account (required)")
	password := fs.String("password", "", "New password (required)")

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *username == "" {
		fmt.Printf("Error: --username is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	if *password == "" {
		fmt.Printf("Error: --password is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, flags)

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	ctx := context.Background()
	database := openDatabase(ctx, cfg)
	defer database.Close()

	account, err := database.GetAccountByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("Failed to look up account: %v", err)
	}

	if err := database.UpdateAccountPassword(ctx, account.ID, string(hash)); err != nil {
		log.Fatalf("Failed to change password: %v", err)
	}

	fmt.Printf("Successfully changed password for %s\n", *username)
}

func handleUpdateProfile() {
	fs := flag.NewFlagSet("update-profile", flag.ExitOnError)
	flags := addCommonFlags(fs)

	username := fs.String("username", "", "Username of the account to update (required)")
	displayName := fs.String("display-name", "", "New display name")
	signature := fs.String("signature", "", "New signature appended to outgoing mail")

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *username == "" {
		fmt.Printf("Error: --username is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	if !isFlagSet(fs, "display-name") && !isFlagSet(fs, "signature") {
		fmt.Printf("Error: at least one of --display-name or --signature must be given\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, flags)

	ctx := context.Background()
	database := openDatabase(ctx, cfg)
	defer database.Close()

	account, err := database.GetAccountByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("Failed to look up account: %v", err)
	}

	newDisplayName := account.DisplayName
	if isFlagSet(fs, "display-name") {
		newDisplayName = *displayName
	}
	newSignature := account.Signature
	if isFlagSet(fs, "signature") {
		newSignature = *signature
	}

	if err := database.UpdateAccountProfile(ctx, account.ID, newDisplayName, newSignature); err != nil {
		log.Fatalf("Failed to update profile: %v", err)
	}

	fmt.Printf("Successfully updated profile for %s\n", *username)
}
