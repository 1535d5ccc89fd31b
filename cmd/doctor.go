package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/answergrid/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("answergrid doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults + env apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Secrets:")
	checkSecret("Webhook secret", cfg.Server.WebhookSecret)
	checkSecret("API token", cfg.Server.APIToken)
	checkSecret("Encryption key", cfg.Tenants.EncryptionKey)
	checkSecret("Slack bot token", cfg.Channels.Slack.BotToken)
	checkSecret("WhatsApp token", cfg.Channels.WhatsApp.AccessToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s managed (postgres)\n", "Mode:")
		db, dbErr := sql.Open("pgx", cfg.Database.PostgresDSN)
		if dbErr == nil {
			dbErr = db.PingContext(ctx)
			db.Close()
		}
		if dbErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", dbErr)
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
		}
	} else {
		fmt.Printf("    %-12s standalone (sqlite)\n", "Mode:")
		fmt.Printf("    %-12s %s\n", "Path:", config.ExpandHome(cfg.Database.SQLitePath))
	}

	fmt.Println()
	fmt.Println("  Queue:")
	if cfg.Redis.Addr == "" {
		fmt.Printf("    %-12s in-process (single instance only)\n", "Backend:")
	} else {
		fmt.Printf("    %-12s redis %s\n", "Backend:", cfg.Redis.Addr)
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, Password: cfg.Redis.Password})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Printf("    %-12s PING FAILED (%s)\n", "Status:", err)
		} else {
			fmt.Printf("    %-12s OK\n", "Status:")
		}
		rdb.Close()
	}

	fmt.Println()
	fmt.Println("  Answer backend:")
	if cfg.Answer.BaseURL == "" {
		fmt.Printf("    %-12s NOT CONFIGURED\n", "URL:")
		return
	}
	fmt.Printf("    %-12s %s\n", "URL:", cfg.Answer.BaseURL)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Answer.BaseURL+"/healthz", nil)
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Status:", err)
		return
	}
	resp.Body.Close()
	fmt.Printf("    %-12s %s\n", "Status:", resp.Status)
}

func checkSecret(name, value string) {
	state := "SET"
	if value == "" {
		state = "MISSING"
	}
	fmt.Printf("    %-18s %s\n", name+":", state)
}
