package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vdcapital/copytrader/internal/config"
	"github.com/vdcapital/copytrader/internal/storage"
)

// seed initializes a development database: default allocation policy, risk
// limits, a symbol allow-list and a pair of sample accounts.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	symbols := flag.String("symbols", "AAPL,MSFT,SPY,TSLA", "comma-separated symbol allow-list")
	withAccounts := flag.Bool("accounts", false, "also create sample credentials and accounts")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		os.Exit(1)
	}

	policy := storage.AllocationPolicy{
		IsActive:   true,
		Mode:       storage.AllocPercentage,
		Percentage: 5,
	}
	if err := db.FirstOrCreate(&policy, storage.AllocationPolicy{ID: 1}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed allocation policy: %v\n", err)
		os.Exit(1)
	}

	limits := storage.RiskLimits{
		Enabled:               true,
		MaxTradeSize:          5000,
		MaxPercentagePerTrade: 5,
	}
	if err := db.FirstOrCreate(&limits, storage.RiskLimits{ID: 1}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed risk limits: %v\n", err)
		os.Exit(1)
	}

	var added int
	for _, sym := range strings.Split(*symbols, ",") {
		sym = strings.TrimSpace(strings.ToUpper(sym))
		if sym == "" {
			continue
		}
		entry := storage.SymbolPolicy{Symbol: sym, IsActive: true}
		if err := db.FirstOrCreate(&entry, storage.SymbolPolicy{Symbol: sym}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "seed symbol %s: %v\n", sym, err)
			os.Exit(1)
		}
		added++
	}

	fmt.Printf("Seeded policy (%s), risk limits and %d symbol(s).\n", policy.Mode, added)

	if !*withAccounts {
		return
	}

	cred := storage.BrokerCredential{
		Name:       "Tastytrade Sandbox",
		BrokerType: storage.BrokerTastytrade,
		IsActive:   true,
	}
	if err := db.FirstOrCreate(&cred, storage.BrokerCredential{Name: cred.Name}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "seed credential: %v\n", err)
		os.Exit(1)
	}

	accounts := []storage.BrokerAccount{
		{CredentialID: cred.ID, AccountRef: "5WT00001", AccountName: "Master", AccountType: "margin", Balance: 100000, BuyingPower: 200000, IsActive: true},
		{CredentialID: cred.ID, AccountRef: "5WT00002", AccountName: "Follower A", AccountType: "margin", Balance: 25000, BuyingPower: 50000, IsActive: true},
		{CredentialID: cred.ID, AccountRef: "5WT00003", AccountName: "Follower B", AccountType: "cash", Balance: 10000, BuyingPower: 10000, IsActive: true},
	}
	for i := range accounts {
		acct := accounts[i]
		if err := db.FirstOrCreate(&acct, storage.BrokerAccount{AccountRef: acct.AccountRef}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "seed account %s: %v\n", acct.AccountRef, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Seeded 1 credential and %d account(s).\n", len(accounts))
}
