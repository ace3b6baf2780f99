// Command hazeldav-bootstrap performs the explicit admin operation that
// creates a principal and, optionally, a calendar or addressbook collection
// under it, since this core has no directory service to seed principals
// from.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hazeldav/hazeldav/internal/config"
	"github.com/hazeldav/hazeldav/internal/logging"
	"github.com/hazeldav/hazeldav/internal/metastore"
	"github.com/hazeldav/hazeldav/internal/metastore/postgres"
	"github.com/hazeldav/hazeldav/internal/metastore/sqlite"
)

func main() {
	var (
		principal string
		kind string
		name string
		displayName string
		description string
	)
	flag.StringVar(&principal, "principal", "", "principal bare name, e.g. alice (required)")
	flag.StringVar(&kind, "kind", "", "collection kind to create: calendar, addressbook, or empty for principal-only")
	flag.StringVar(&name, "name", "", "collection path segment, e.g. calendar or addressbook (required with -kind)")
	flag.StringVar(&displayName, "display", "", "display name (defaults to -name)")
	flag.StringVar(&description, "desc", "", "description")
	flag.Parse()

	if principal == "" {
		fmt.Fprintln(os.Stderr, "usage: hazeldav-bootstrap -principal <name> [-kind calendar|addressbook -name <seg> [-display ...] [-desc ...]]")
		os.Exit(2)
	}
	if kind != "" && name == "" {
		fmt.Fprintln(os.Stderr, "-name is required when -kind is given")
		os.Exit(2)
	}
	if displayName == "" {
		displayName = name
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	logger = logger.With().Str("component", "bootstrap").Logger()

	meta, err := openMetastore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "metastore init: %v\n", err)
		os.Exit(1)
	}
	defer meta.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	principalPath := "/" + principal + "/"
	if err := meta.PutCollectionMeta(ctx, metastore.CollectionMeta{
		Path: principalPath, Kind: "principal", DisplayName: principal, OwnerPrincipal: principal,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "create principal: %v\n", err)
		os.Exit(1)
	}
	logger.Info().Str("principal", principal).Msg("principal created")

	if kind == "" {
		fmt.Printf("Created principal /%s/\n", principal)
		return
	}

	var home string
	switch kind {
	case "calendar":
		home = "calendars"
	case "addressbook":
		home = "contacts"
	default:
		fmt.Fprintf(os.Stderr, "unknown -kind %q (want calendar or addressbook)\n", kind)
		os.Exit(2)
	}
	collPath := "/" + principal + "/" + home + "/" + name + "/"
	if err := meta.PutCollectionMeta(ctx, metastore.CollectionMeta{
		Path: collPath, Kind: kind, DisplayName: displayName, Description: description,
		OwnerPrincipal: principal, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "create collection: %v\n", err)
		os.Exit(1)
	}
	logger.Info().Str("principal", principal).Str("path", collPath).Msg("collection created")
	fmt.Printf("Created %s %s display=%q\n", kind, collPath, displayName)
}

func openMetastore(cfg *config.Config) (metastore.Store, error) {
	switch cfg.Storage.MetaDriver {
	case "postgres":
		return postgres.New(context.Background(), cfg.Storage.MetaDSN, logging.New(cfg.LogLevel))
	case "sqlite", "":
		return sqlite.New(cfg.Storage.MetaDSN, logging.New(cfg.LogLevel))
	default:
		return nil, fmt.Errorf("unknown metastore driver %q", cfg.Storage.MetaDriver)
	}
}
