package main

import (
	"context"
	"flag"
	"log"

	"github.com/floradesk/flora_backend/config"
	"github.com/floradesk/flora_backend/models"
	"github.com/sirupsen/logrus"
)

// stock-rebuild regenerates the StockBalance cache of an organization from
// the batch ledger. Run it after manual batch surgery or when a balance
// drift is suspected; the cache is a materialized view and this is its
// authoritative rebuild path.
func main() {
	orgId := flag.String("org", "", "organization id to rebuild (required)")
	migrate := flag.Bool("migrate", false, "run AutoMigrate before rebuilding")
	flag.Parse()

	if *orgId == "" {
		log.Fatal("usage: stock-rebuild -org <organization-id> [-migrate]")
	}

	logger := config.GetLogger()
	logger.SetLevel(logrus.InfoLevel)

	config.ConnectDatabaseWithRetry()
	if *migrate {
		models.MigrateTable()
	}

	ctx := context.Background()
	if err := models.RebuildStockBalances(config.GetDB(), ctx, *orgId); err != nil {
		config.LogError(logger, "cmd", "stock-rebuild", "rebuild failed", *orgId, err)
		log.Fatal(err)
	}
	logger.WithFields(logrus.Fields{"organization_id": *orgId}).Info("stock balances rebuilt")
}
