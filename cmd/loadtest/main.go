package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/coffeetrade/internal/service/grpc"
)

const (
	idempotencyHeader = "idempotency-key"
	orderDate         = "01/10/2026"
	reportName        = "sale-orders-by-customer"
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateEdit   loadMode = "create-edit"
	modeCreateReport loadMode = "create-report"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	qty         int
	outputPath  string
}

// caller: минимальная поверхность клиента TradingService.
type caller interface {
	Call(ctx context.Context, fullMethod string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// fixture: справочные данные, созданные перед нагрузкой.
type fixture struct {
	customerID   string
	customerName string
	sellerID     string
	coffeeIDs    [2]string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-edit | create-report")
	fs.IntVar(&cfg.qty, "qty", 2, "quantity of each order line")
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

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.qty <= 0:
		return cfg, errors.New("qty must be > 0")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateEdit, modeCreateReport:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]caller, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewTradingClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result, err := runLoad(clients, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

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

// runLoad создаёт справочные данные и прогоняет сценарии на пуле воркеров.
func runLoad(clients []caller, cfg config) (report, error) {
	if len(clients) == 0 {
		return report{}, errors.New("at least one client is required")
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	fx, err := seed(clients[0], cfg.timeout, runID, col)
	if err != nil {
		return report{}, fmt.Errorf("seed catalog: %w", err)
	}

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli caller) {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(cli, cfg, fx, id, runID, col)
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt)), nil
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

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func seed(client caller, timeout time.Duration, runID string, col *collector) (fixture, error) {
	var fx fixture

	typ, err := call(client, timeout, grpcsvc.MethodCreateCoffeeType, map[string]any{"name": "Load " + runID}, "", col)
	if err != nil {
		return fx, err
	}
	typeID := typ.GetFields()["id"].GetStringValue()

	for i, price := range []string{"3.50", "1.25"} {
		coffee, err := call(client, timeout, grpcsvc.MethodCreateCoffee, map[string]any{
			"name":         fmt.Sprintf("Load %s #%d", runID, i),
			"type_id":      typeID,
			"price":        price,
			"import_price": "1.00",
		}, "", col)
		if err != nil {
			return fx, err
		}
		fx.coffeeIDs[i] = coffee.GetFields()["id"].GetStringValue()
	}

	fx.customerName = "Load Customer " + runID
	customer, err := call(client, timeout, grpcsvc.MethodCreateParty, map[string]any{
		"kind":  "customer",
		"name":  fx.customerName,
		"dob":   "01/01/1990",
		"email": "load@gmail.com",
	}, "", col)
	if err != nil {
		return fx, err
	}
	fx.customerID = customer.GetFields()["id"].GetStringValue()

	seller, err := call(client, timeout, grpcsvc.MethodCreateParty, map[string]any{
		"kind": "seller",
		"name": "Load Seller " + runID,
	}, "", col)
	if err != nil {
		return fx, err
	}
	fx.sellerID = seller.GetFields()["id"].GetStringValue()
	return fx, nil
}

func runScenario(client caller, cfg config, fx fixture, index int, runID string, col *collector) (err error) {
	scenarioStart := time.Now()
	defer func() {
		col.record(scenarioKey, time.Since(scenarioStart), grpcCode(err))
	}()

	lineID := fmt.Sprintf("lt-%s-%d", runID, index)
	created, err := call(client, cfg.timeout, grpcsvc.MethodCreateOrder, map[string]any{
		"kind":            "sale_order",
		"counterparty_id": fx.customerID,
		"agent_id":        fx.sellerID,
		"date":            orderDate,
		"lines": []any{
			map[string]any{"id": lineID + "-a", "coffee_id": fx.coffeeIDs[0], "qty": cfg.qty},
		},
	}, fmt.Sprintf("lt-create-%s-%d", runID, index), col)
	if err != nil {
		return err
	}
	orderID := created.GetFields()["order"].GetStructValue().GetFields()["id"].GetStringValue()
	if orderID == "" {
		return status.Error(codes.Internal, "create response returned empty order id")
	}

	switch cfg.mode {
	case modeCreateEdit:
		if _, err = call(client, cfg.timeout, grpcsvc.MethodAddLineItem, map[string]any{
			"order_id": orderID,
			"line":     map[string]any{"id": lineID + "-b", "coffee_id": fx.coffeeIDs[1], "qty": cfg.qty},
		}, "", col); err != nil {
			return err
		}
		_, err = call(client, cfg.timeout, grpcsvc.MethodUpdateLineItem, map[string]any{
			"order_id": orderID, "line_item_id": lineID + "-a", "qty": cfg.qty + 1,
		}, "", col)
		return err
	case modeCreateReport:
		_, err = call(client, cfg.timeout, grpcsvc.MethodRunReport, map[string]any{
			"report": reportName, "term": fx.customerName,
		}, "", col)
		return err
	}
	return nil
}

// call выполняет один RPC и записывает его латентность под коротким именем метода.
func call(client caller, timeout time.Duration, method string, fields map[string]any, idemKey string, col *collector) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if idemKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, idemKey)
	}

	resp, err := client.Call(ctx, method, req)
	col.record(method[strings.LastIndex(method, "/")+1:], time.Since(start), grpcCode(err))
	return resp, err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
