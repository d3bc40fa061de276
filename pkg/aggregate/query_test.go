package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/panel-aggregator/internal/testutil"
	"github.com/Sternrassler/panel-aggregator/pkg/client"
	"github.com/Sternrassler/panel-aggregator/pkg/fetcher"
	"github.com/Sternrassler/panel-aggregator/pkg/partition"
	"github.com/Sternrassler/panel-aggregator/pkg/query"
)

type movement struct {
	ID   int    `json:"id"`
	Tipo string `json:"tipo"`
}

func TestQuery_OverHTTP(t *testing.T) {
	backend := testutil.NewMockBackend()
	defer backend.Close()

	backend.SetTypeResponse("/ajustes-estoque/1", "5",
		testutil.NewEnvelopeResponse("dados", "totalItens", 2, testutil.Items(1, 2, "5")...))
	backend.SetTypeResponse("/ajustes-estoque/1", "6",
		testutil.NewEnvelopeResponse("conteudo", "qtdElementos", 5, testutil.Items(10, 3, "6")...))

	c, err := client.New(client.DefaultConfig(backend.URL(), "panel-test/1.0"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	fetch := FetchFrom(fetcher.New[movement](c), fetcher.Resource{
		Name:    "ajustes-estoque",
		Scope:   "1",
		Columns: query.InventoryColumns,
	})
	planner := partition.NewPlanner("", "5", "6")

	t.Run("both partitions enabled", func(t *testing.T) {
		spec, _ := query.New(1, 10)

		got := Query(context.Background(), spec, planner(spec), fetch)

		if got.Err != nil {
			t.Fatalf("Err = %v", got.Err)
		}
		if len(got.Items) != 5 || got.TotalElements != 7 || got.TotalPages != 1 {
			t.Errorf("got %d items, %d elements, %d pages; want 5, 7, 1",
				len(got.Items), got.TotalElements, got.TotalPages)
		}
		if got.Items[0].Tipo != "5" || got.Items[4].Tipo != "6" {
			t.Errorf("items not in partition order: %+v", got.Items)
		}
	})

	t.Run("type filter skips the other partition", func(t *testing.T) {
		backend.Reset()
		spec, _ := query.New(1, 10, query.WithFilter("tipo", query.String("5")))

		got := Query(context.Background(), spec, planner(spec), fetch)

		if len(got.Items) != 2 || got.TotalElements != 2 {
			t.Errorf("got %d items, %d elements; want 2, 2", len(got.Items), got.TotalElements)
		}
		if n := backend.GetTypeCount("/ajustes-estoque/1", "6"); n != 0 {
			t.Errorf("requests for tipo 6 = %d, want 0", n)
		}
		if n := backend.GetTypeCount("/ajustes-estoque/1", "5"); n != 1 {
			t.Errorf("requests for tipo 5 = %d, want 1", n)
		}
	})

	t.Run("malformed partition does not break aggregate", func(t *testing.T) {
		backend.SetTypeResponse("/ajustes-estoque/1", "6", testutil.NewMalformedResponse())
		spec, _ := query.New(1, 10)

		got := Query(context.Background(), spec, planner(spec), fetch)

		var parseErr *fetcher.ParseError
		if !errors.As(got.Err, &parseErr) {
			t.Fatalf("expected *fetcher.ParseError in chain, got %v", got.Err)
		}
		if len(got.Items) != 2 {
			t.Errorf("len(Items) = %d, want 2", len(got.Items))
		}
	})
}

func TestQuery_FiresAllPartitionsConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	allArrived := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allArrived)
	}()

	fetch := func(ctx context.Context, spec query.Spec, p partition.Spec) fetcher.Result[string] {
		arrived.Done()
		select {
		case <-allArrived:
			return fetcher.Result[string]{Items: []string{p.TypeValue}, TotalItems: 1, TotalPages: 1}
		case <-time.After(2 * time.Second):
			return fetcher.Failed[string](fmt.Errorf("partition %s waited alone", p.TypeValue))
		}
	}

	spec, _ := query.New(1, 10)
	plan := partition.Plan(nil, partition.DefaultTypeFilter, []string{"entrada", "saida"})

	got := Query(context.Background(), spec, plan, fetch)

	if got.Err != nil {
		t.Fatalf("partitions were not in flight together: %v", got.Err)
	}
	if len(got.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(got.Items))
	}
}

func TestQuery_PanickingFetchIsContained(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, spec query.Spec, p partition.Spec) fetcher.Result[string] {
		calls.Add(1)
		if p.TypeValue == "b" {
			panic("boom")
		}
		return fetcher.Result[string]{Items: []string{"x"}, TotalItems: 1, TotalPages: 1}
	}

	spec, _ := query.New(1, 10)
	plan := partition.Plan(nil, partition.DefaultTypeFilter, []string{"a", "b"})

	got := Query(context.Background(), spec, plan, fetch)

	var partial *PartialPartitionError
	if !errors.As(got.Err, &partial) || partial.TypeValue != "b" {
		t.Errorf("Err = %v, want partial error for b", got.Err)
	}
	if len(got.Items) != 1 {
		t.Errorf("len(Items) = %d, want 1", len(got.Items))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}
