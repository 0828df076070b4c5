package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHealthServer()
	h.RegisterCheck(func(context.Context) HealthCheck {
		return HealthCheck{Name: "store", Status: HealthStatusHealthy}
	})

	rec := httptest.NewRecorder()
	h.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != HealthStatusHealthy || len(resp.Checks) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealthEndpointUnhealthyCheck(t *testing.T) {
	h := NewHealthServer()
	h.RegisterCheck(func(context.Context) HealthCheck {
		return HealthCheck{Name: "store", Status: HealthStatusUnhealthy, Message: "connection refused"}
	})

	rec := httptest.NewRecorder()
	h.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := NewHealthServer()

	rec := httptest.NewRecorder()
	h.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before ready = %d, want 503", rec.Code)
	}

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status after ready = %d, want 200", rec.Code)
	}
}

func TestShutdownHandlerRunsHooksInPriorityOrder(t *testing.T) {
	s := NewShutdownHandler(time.Second, nil)

	var order []string
	s.RegisterHook("last", 90, func(context.Context) error {
		order = append(order, "last")
		return nil
	})
	s.RegisterHook("first", 10, func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	s.RegisterHook("middle", 50, func(context.Context) error {
		order = append(order, "middle")
		return errors.New("middle failed") // must not stop later hooks
	})

	s.Start()
	s.Shutdown()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	want := []string{"first", "middle", "last"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestShutdownHandlerIdempotentTrigger(t *testing.T) {
	s := NewShutdownHandler(time.Second, nil)
	ran := 0
	s.RegisterHook("count", 10, func(context.Context) error {
		ran++
		return nil
	})
	s.Start()
	s.Shutdown()
	s.Shutdown()
	s.Wait()
	if ran != 1 {
		t.Errorf("hook ran %d times", ran)
	}
}
