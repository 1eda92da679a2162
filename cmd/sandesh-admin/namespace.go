package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sandesh-mail/sandesh/db"
)

func handleGetNamespace() {
	fs := flag.NewFlagSet("get-namespace", flag.ExitOnError)
	flags := addCommonFlags(fs)

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	cfg := loadConfig(fs, flags)

	ctx := context.Background()
	database := openDatabase(ctx, cfg)
	defer database.Close()

	settings := db.NewSystemSettings(database, cfg.Namespace)
	namespace, err := settings.Namespace(ctx)
	if err != nil {
		log.Fatalf("Failed to read namespace: %v", err)
	}

	fmt.Println(namespace)
}

func handleSetNamespace() {
	fs := flag.NewFlagSet("set-namespace", flag.ExitOnError)
	flags := addCommonFlags(fs)

	namespace := fs.String("namespace", "", "New mail namespace (required)")

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *namespace == "" {
		fmt.Printf("Error: --namespace is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, flags)

	ctx := context.Background()
	database := openDatabase(ctx, cfg)
	defer database.Close()

	settings := db.NewSystemSettings(database, cfg.Namespace)
	if err := settings.SetNamespace(ctx, *namespace); err != nil {
		log.Fatalf("Failed to set namespace: %v", err)
	}

	// Existing messages keep the sender fields they were stored with; only
	// newly formatted identities pick up the new namespace.
	fmt.Printf("Namespace set to %s\n", *namespace)
}
