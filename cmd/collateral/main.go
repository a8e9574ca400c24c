// collateral 查看或修改交易台共享的保证金, 相当于仪表盘页面的写入方
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nepse-mock-trader/internal/broker"
	"nepse-mock-trader/internal/service"
	"nepse-mock-trader/internal/store"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: collateral [-config dir] show | set <amount>\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "config", "directory containing config.yaml")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Usage = usage
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", *envFile, err)
	}

	cfg, err := service.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	service.InitLogger("warn")
	defer service.Logger.Sync()

	if cfg.Collateral.StorePath == "" {
		fmt.Fprintln(os.Stderr, "Collateral.StorePath is empty: the desk keeps collateral in memory, nothing to share")
		os.Exit(1)
	}

	s, err := store.NewSQLiteStore(cfg.Collateral.StorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "show":
		err = show(ctx, os.Stdout, s, cfg)
	case "set":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		err = set(ctx, os.Stdout, s, cfg, args[1])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func show(ctx context.Context, out io.Writer, s store.CollateralStore, cfg *service.Config) error {
	bal, err := store.LoadOrInit(ctx, s, cfg.Collateral.Key, decimal.NewFromFloat(cfg.Collateral.Initial))
	if err != nil {
		return err
	}
	printBalance(out, "COLLATERAL", cfg.Collateral.Key, bal)
	return nil
}

// set 按比较并交换写入; 交易台同时写入时重读后重试
func set(ctx context.Context, out io.Writer, s store.CollateralStore, cfg *service.Config, raw string) error {
	amount, err := store.ParseAmount(raw)
	if err != nil {
		return err
	}
	if amount.IsNegative() {
		return fmt.Errorf("collateral must not be negative: %s", amount)
	}

	var bal store.Balance
	for attempt := 0; attempt <= cfg.Collateral.MaxRetries; attempt++ {
		current, err := s.Load(ctx, cfg.Collateral.Key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		bal, err = s.Save(ctx, cfg.Collateral.Key, amount, current.Version)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt == cfg.Collateral.MaxRetries {
			return err
		}
	}

	printBalance(out, "COLLATERAL UPDATED", cfg.Collateral.Key, bal)
	publish(cfg, bal)
	return nil
}

// publish 通知正在运行的交易台; NATS 不可用时交易台会在下一次写入冲突时读到新值
func publish(cfg *service.Config, bal store.Balance) {
	if !cfg.NATS.Enabled {
		return
	}

	natsCfg := cfg.NATS
	natsCfg.ClientID = natsCfg.ClientID + "-cli"
	np := broker.NewNATSPublisher(&natsCfg, service.Logger)
	if err := np.Connect(); err != nil {
		service.Logger.Warn("NATS unavailable, desk not notified", zap.Error(err))
		return
	}
	defer np.Close()

	if err := np.PublishCollateral(broker.NewCollateralEvent(bal, natsCfg.ClientID)); err != nil {
		service.Logger.Warn("Failed to publish collateral update", zap.Error(err))
	}
}

func printBalance(out io.Writer, title, key string, bal store.Balance) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Key", key},
		{"Amount", "NPR " + service.FormatIndian(bal.Amount.InexactFloat64())},
		{"Version", bal.Version},
		{"Updated", bal.UpdatedAt.Local().Format("2006-01-02 15:04:05")},
	})
	t.Render()
}
