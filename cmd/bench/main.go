package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryandielhenn/zephyrgraph/pkg/client"
)

func main() {
	addr := flag.String("addr", "http://localhost:8000", "node address")
	n := flag.Int("n", 5000, "vertices to insert")
	conc := flag.Int("c", 32, "concurrency")
	paths := flag.Int("paths", 500, "find_path queries after the load phase")
	bcast := flag.Bool("broadcast", false, "broadcast once the load phase is done")
	flag.Parse()

	c := client.New(*addr, client.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	ctx := context.Background()

	var ops, failed atomic.Int64
	record := func(r client.Response, err error) {
		ops.Add(1)
		if err != nil || !r.OK() {
			failed.Add(1)
		}
	}

	// load: each vertex links back to a random earlier one, so the graph stays connected
	start := time.Now()
	var g errgroup.Group
	g.SetLimit(*conc)
	var mu sync.Mutex
	added := make([]int64, 0, *n)
	for i := range *n {
		g.Go(func() error {
			u := int64(i)
			r, err := c.AddVertex(ctx, u)
			record(r, err)
			if err != nil || !r.OK() {
				return nil
			}
			mu.Lock()
			var v int64 = -1
			if len(added) > 0 {
				v = added[rand.Intn(len(added))]
			}
			added = append(added, u)
			mu.Unlock()
			if v >= 0 {
				record(c.AddEdge(ctx, u, v))
			}
			return nil
		})
	}
	_ = g.Wait()
	report("load", start, ops.Load(), failed.Load())

	// query
	ops.Store(0)
	failed.Store(0)
	start = time.Now()
	for range *paths {
		g.Go(func() error {
			u, v := rand.Int63n(int64(*n)), rand.Int63n(int64(*n))
			record(c.FindPath(ctx, u, v))
			return nil
		})
	}
	_ = g.Wait()
	report("find_path", start, ops.Load(), failed.Load())

	if *bcast {
		start = time.Now()
		r, err := c.Broadcast(ctx)
		if err != nil {
			fmt.Println("broadcast:", err)
			return
		}
		fmt.Printf("broadcast: %s in %s\n", r.Message, time.Since(start))
	}
}

func report(phase string, start time.Time, ops, failed int64) {
	dur := time.Since(start)
	fmt.Printf("%-10s %d ops (%d failed) in %s (%.2f ops/s)\n", phase, ops, failed, dur, float64(ops)/dur.Seconds())
}
