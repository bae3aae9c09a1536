package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"taskboard/client"
)

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Opens SSE_CONNECTIONS event streams on one project while moving a task back
// and forth between two lists, then reports delivered events and failures.
// Defaults target the board created by storage-init.
func main() {
	baseURL := strings.TrimRight(getenv("BASE_URL", "http://localhost:3000"), "/")
	username := getenv("USERNAME", "demo")
	projectID := getenv("PROJECT_ID", "demo-project-1")
	conns := getenvInt("SSE_CONNECTIONS", 200)
	duration := time.Duration(getenvInt("DURATION_SEC", 120)) * time.Second
	moveEvery := time.Duration(getenvInt("MOVE_INTERVAL_MS", 500)) * time.Millisecond
	streamURL := baseURL + "/api/projects/" + projectID + "/stream"

	var events uint64
	var attempts uint64
	var failures uint64
	var moves uint64

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	httpClient := &http.Client{}
	var wg sync.WaitGroup
	wg.Add(conns)
	for range conns {
		go func() {
			defer wg.Done()
			backoff := time.Second
			for {
				if ctx.Err() != nil {
					return
				}
				atomic.AddUint64(&attempts, 1)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
				if err != nil {
					atomic.AddUint64(&failures, 1)
					time.Sleep(backoff)
					backoff = min(backoff*2, 5*time.Second)
					continue
				}
				req.Header.Set(client.HeaderUsername, username)
				resp, err := httpClient.Do(req)
				if err != nil || resp.StatusCode != http.StatusOK {
					if resp != nil {
						resp.Body.Close()
					}
					atomic.AddUint64(&failures, 1)
					time.Sleep(backoff)
					backoff = min(backoff*2, 5*time.Second)
					continue
				}
				backoff = time.Second
				scanner := bufio.NewScanner(resp.Body)
				for scanner.Scan() {
					if strings.HasPrefix(scanner.Text(), "event:") {
						atomic.AddUint64(&events, 1)
					}
					if ctx.Err() != nil {
						resp.Body.Close()
						return
					}
				}
				resp.Body.Close()
				if ctx.Err() != nil {
					return
				}
				atomic.AddUint64(&failures, 1)
				time.Sleep(backoff)
				backoff = min(backoff*2, 5*time.Second)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		drive(ctx, client.NewAPI(baseURL, username, httpClient), projectID, moveEvery, &moves)
	}()

	go func() {
		select {
		case <-time.After(60 * time.Second):
			if atomic.LoadUint64(&events) == 0 {
				fmt.Println("no events received in 60s")
				os.Exit(1)
			}
		case <-ctx.Done():
		}
	}()

	wg.Wait()
	failuresVal := atomic.LoadUint64(&failures)
	attemptsVal := atomic.LoadUint64(&attempts)
	eventsVal := atomic.LoadUint64(&events)
	failureRate := 0.0
	if attemptsVal > 0 {
		failureRate = float64(failuresVal) / float64(attemptsVal)
	}
	fmt.Printf("connections=%d duration_sec=%d moves=%d events_received=%d connection_failures=%d\n",
		conns, int(duration.Seconds()), atomic.LoadUint64(&moves), eventsVal, failuresVal)
	if eventsVal == 0 || failureRate > 0.01 {
		os.Exit(1)
	}
}

// drive moves the first task of the first list to the second list and back
// until ctx is done, so every stream has events to deliver.
func drive(ctx context.Context, api *client.API, projectID string, every time.Duration, moves *uint64) {
	lists, err := api.Lists(ctx, projectID)
	if err != nil || len(lists) < 2 {
		fmt.Printf("cannot drive moves: lists=%d err=%v\n", len(lists), err)
		return
	}
	from, to := lists[0].ID, lists[1].ID
	tasks, err := api.Tasks(ctx, from)
	if err != nil || len(tasks) == 0 {
		fmt.Printf("cannot drive moves: no task in %s (err=%v)\n", from, err)
		return
	}
	taskID := tasks[0].ID

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		dest, err := api.Tasks(ctx, to)
		if err != nil {
			continue
		}
		if _, err := api.MoveTask(ctx, taskID, to, len(dest)); err != nil {
			continue
		}
		atomic.AddUint64(moves, 1)
		from, to = to, from
	}
}
