//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/panel-aggregator/internal/testutil"
	"github.com/Sternrassler/panel-aggregator/pkg/aggregate"
	"github.com/Sternrassler/panel-aggregator/pkg/client"
	"github.com/Sternrassler/panel-aggregator/pkg/fetcher"
	"github.com/Sternrassler/panel-aggregator/pkg/partition"
	"github.com/Sternrassler/panel-aggregator/pkg/query"
	"github.com/Sternrassler/panel-aggregator/pkg/viewstate"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const adjustmentsPath = "/ajustes-estoque/42"

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

type adjustment struct {
	ID   int    `json:"id"`
	Tipo string `json:"tipo"`
}

func newAdjustmentsController(t *testing.T, backend *testutil.MockBackend, httpClient *http.Client) *aggregate.Controller[adjustment] {
	t.Helper()

	c, err := client.New(client.DefaultConfig(backend.URL(), "panel-integration/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if httpClient != nil {
		c.SetHTTPClient(httpClient)
	}

	res := fetcher.Resource{Name: "ajustes-estoque", Scope: "42", Columns: query.InventoryColumns}
	ctrl := aggregate.NewController(
		aggregate.FetchFrom(fetcher.New[adjustment](c), res),
		partition.NewPlanner("", "5", "6"),
		aggregate.WithName("integration"),
	)
	t.Cleanup(ctrl.Close)
	return ctrl
}

// TestFullViewFlow restores a stored query, fetches both partitions and
// narrows to one partition: View State → Plan → Fetch → Combine.
func TestFullViewFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	backend := testutil.NewMockBackend()
	defer backend.Close()

	backend.SetTypeResponse(adjustmentsPath, "5",
		testutil.NewEnvelopeResponse("dados", "totalItens", 2, testutil.Items(1, 2, "5")...))
	backend.SetTypeResponse(adjustmentsPath, "6",
		testutil.NewEnvelopeResponse("data", "qtdElementos", 5, testutil.Items(10, 3, "6")...))

	store := viewstate.NewStore(redisClient, time.Minute)
	ctx := context.Background()
	key := viewstate.Key{Session: "integration", View: "stock-adjustments"}

	stored, _ := query.New(1, 10, query.WithSort("data", query.Desc))
	if err := store.Save(ctx, key, stored); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	spec, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ctrl := newAdjustmentsController(t, backend, nil)
	if _, err := ctrl.Update(spec); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := ctrl.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(res.Items) != 5 || res.TotalElements != 7 || res.TotalPages != 1 {
		t.Errorf("got %d items, %d elements, %d pages; want 5, 7, 1",
			len(res.Items), res.TotalElements, res.TotalPages)
	}

	q := backend.LastQuery()
	if q.Get("sortKey") != "dataMovimento" || q.Get("sortDirection") != "desc" {
		t.Errorf("backend sort params = %v", q)
	}

	narrowed := spec.WithFilter("tipo", query.String("5"))
	if err := store.Save(ctx, key, narrowed); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	ctrl.Update(narrowed)

	res, err = ctrl.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(res.Items) != 2 || res.TotalElements != 2 {
		t.Errorf("got %d items, %d elements; want 2, 2", len(res.Items), res.TotalElements)
	}
	if n := backend.GetTypeCount(adjustmentsPath, "6"); n != 1 {
		t.Errorf("requests for tipo 6 = %d, want 1", n)
	}

	restored, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !restored.Equal(narrowed) {
		t.Errorf("restored = %s, want %s", restored.Key(), narrowed.Key())
	}
}

// TestSlowPartitionTimesOut checks that a transport timeout fails only the
// slow partition.
func TestSlowPartitionTimesOut(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()

	backend.SetTypeResponse(adjustmentsPath, "5",
		testutil.NewArrayResponse(testutil.Items(1, 2, "5")...))
	slow := testutil.NewArrayResponse(testutil.Items(10, 3, "6")...)
	slow.Delay = 2 * time.Second
	backend.SetTypeResponse(adjustmentsPath, "6", slow)

	ctrl := newAdjustmentsController(t, backend, &http.Client{Timeout: 200 * time.Millisecond})

	spec, _ := query.New(1, 10)
	ctrl.Update(spec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := ctrl.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	var netErr *fetcher.NetworkError
	if !errors.As(res.Err, &netErr) || netErr.TypeValue != "6" {
		t.Errorf("Err = %v, want network error for tipo 6", res.Err)
	}
	if len(res.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(res.Items))
	}
	if ctrl.State() != aggregate.StateFailed {
		t.Errorf("State() = %v, want %v", ctrl.State(), aggregate.StateFailed)
	}
}

// TestResponseShapesDecodeAsRawJSON runs untyped items through the same
// pipeline the proxy uses.
func TestResponseShapesDecodeAsRawJSON(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()

	backend.SetResponse("/coletas/42", testutil.NewEnvelopeResponse("conteudo", "totalItens", 31, testutil.Items(1, 10, "")...))

	c, err := client.New(client.DefaultConfig(backend.URL(), "panel-integration/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	fetch := aggregate.FetchFrom(fetcher.New[json.RawMessage](c), fetcher.Resource{
		Name:    "coletas",
		Scope:   "42",
		Columns: query.CollectionColumns,
	})

	spec, _ := query.New(1, 10)
	res := aggregate.Query(context.Background(), spec, partition.NewPlanner("")(spec), fetch)

	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if len(res.Items) != 10 || res.TotalElements != 31 || res.TotalPages != 4 {
		t.Errorf("got %d items, %d elements, %d pages; want 10, 31, 4",
			len(res.Items), res.TotalElements, res.TotalPages)
	}
	if backend.LastQuery().Has("tipo") {
		t.Error("untyped resource sent a tipo parameter")
	}
}
