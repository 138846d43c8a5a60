package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcsvc "github.com/vladislavdragonenkov/fiadopay/internal/service/grpc"
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreatePoll   loadMode = "create-poll"
	modeCreateRefund loadMode = "create-refund"
)

type config struct {
	addr         string
	total        int
	totalSet     bool
	duration     time.Duration
	concurrency  int
	connections  int
	timeout      time.Duration
	mode         loadMode
	method       string
	currency     string
	amount       string
	installments int
	merchantName string
	webhookURL   string
	pollInterval time.Duration
	pollTimeout  time.Duration
	outputPath   string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to execute; with -duration acts as an upper bound when set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 5m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 8, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-poll | create-refund")
	fs.StringVar(&cfg.method, "method", "PIX", "payment method")
	fs.StringVar(&cfg.currency, "currency", "BRL", "payment currency")
	fs.StringVar(&cfg.amount, "amount", "150.00", "payment amount")
	fs.IntVar(&cfg.installments, "installments", 0, "installments (0 omits the field)")
	fs.StringVar(&cfg.merchantName, "merchant", "loadtest", "name of the merchant registered for the run")
	fs.StringVar(&cfg.webhookURL, "webhook-url", "", "optional merchant webhook URL")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", 100*time.Millisecond, "GetPayment interval in create-poll mode")
	fs.DurationVar(&cfg.pollTimeout, "poll-timeout", 10*time.Second, "how long to wait for a final status in create-poll mode")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.method = strings.ToUpper(strings.TrimSpace(cfg.method))

	var errs []error
	if cfg.duration < 0 {
		errs = append(errs, errors.New("duration must be >= 0"))
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		errs = append(errs, errors.New("total must be > 0 when duration is not set"))
	}
	if cfg.concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be > 0"))
	}
	if cfg.connections <= 0 {
		errs = append(errs, errors.New("connections must be > 0"))
	}
	if cfg.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	if amount, err := decimal.NewFromString(strings.TrimSpace(cfg.amount)); err != nil || !amount.IsPositive() {
		errs = append(errs, fmt.Errorf("amount must be a positive decimal, got %q", cfg.amount))
	}
	if cfg.installments < 0 {
		errs = append(errs, errors.New("installments must be >= 0"))
	}
	if cfg.mode == modeCreatePoll && (cfg.pollInterval <= 0 || cfg.pollTimeout <= 0) {
		errs = append(errs, errors.New("poll-interval and poll-timeout must be > 0"))
	}
	if strings.TrimSpace(cfg.merchantName) == "" {
		errs = append(errs, errors.New("merchant is required"))
	}
	return cfg, errors.Join(errs...)
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreatePoll, modeCreateRefund:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	apis := make([]*grpcsvc.Client, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		apis = append(apis, grpcsvc.NewClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	registered, err := apis[0].RegisterMerchant(ctx, cfg.merchantName, cfg.webhookURL)
	cancel()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to register merchant: %v\n", err)
		os.Exit(1)
	}
	merchantID := registered.GetFields()["merchant"].GetStructValue().GetFields()["id"].GetStringValue()

	pool := make([]paymentAPI, len(apis))
	for i, api := range apis {
		pool[i] = api
	}
	result := runLoad(cfg, pool, merchantID)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт сценарии воркерам; воркер i использует клиента i % len(apis).
func runLoad(cfg config, apis []paymentAPI, merchantID string) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var group errgroup.Group
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		sc := &scenario{
			api:        apis[workerID%len(apis)],
			cfg:        cfg,
			merchantID: merchantID,
			runID:      runID,
			col:        col,
		}
		group.Go(func() error {
			for index := range jobs {
				_ = sc.run(index)
			}
			return nil
		})
	}

	dispatchJobs(jobs, cfg)
	_ = group.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; !cfg.totalSet || i < cfg.total; i++ {
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}
