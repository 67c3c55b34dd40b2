package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	healthcheck "github.com/vladislavdragonenkov/coffeetrade/internal/health"
	grpcsvc "github.com/vladislavdragonenkov/coffeetrade/internal/service/grpc"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestRun_ServesTradingAPI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cfg.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", findFreePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(10 * time.Second):
			t.Error("Run did not stop")
		}
	}()

	conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	healthClient := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		callCtx, callCancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer callCancel()
		resp, err := healthClient.Check(callCtx, &healthpb.HealthCheckRequest{Service: grpcsvc.ServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 20*time.Millisecond)

	req, err := structpb.NewStruct(map[string]any{"name": "Arabica"})
	require.NoError(t, err)
	resp, err := grpcsvc.NewTradingClient(conn).Call(ctx, grpcsvc.MethodCreateCoffeeType, req)
	require.NoError(t, err)
	assert.Equal(t, "T1", resp.GetFields()["id"].GetStringValue())

	httpResp, err := http.Get("http://" + cfg.MetricsAddr + "/metrics")
	require.NoError(t, err)
	defer httpResp.Body.Close()
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	if deps.closeFn != nil {
		defer func() { _ = deps.closeFn() }()
	}

	require.NotNil(t, deps.orders)
	require.NotNil(t, deps.outbox)
	require.NotNil(t, deps.timeline)
	require.NotNil(t, deps.idempotency)
	require.NotNil(t, deps.storageChecker)
	check := deps.storageChecker.Check(context.Background())
	assert.Equal(t, healthcheck.StatusHealthy, check.Status, check.Message)
}

func TestStopGRPC_ForcesAfterTimeout(t *testing.T) {
	server := grpc.NewServer()
	done := make(chan struct{})
	go func() {
		stopGRPC(server, 10*time.Millisecond, log.WithField("test", "grpc-stop"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stopGRPC did not return")
	}
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("COFFEE_POSTGRES_TEST_DSN"))
}
