package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func healthyCheck(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusHealthy}
}

func unhealthyCheck(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Message: "down"}
}

func TestOverallStatusAggregation(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, healthyCheck)
	c.RegisterFunc("feed", false, healthyCheck)
	c.Check(context.Background())

	if got := c.OverallStatus(); got != StatusHealthy {
		t.Errorf("OverallStatus() = %q, want healthy", got)
	}
}

func TestCriticalFailureIsUnhealthy(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, unhealthyCheck)
	c.Check(context.Background())

	if got := c.OverallStatus(); got != StatusUnhealthy {
		t.Errorf("OverallStatus() = %q, want unhealthy", got)
	}
}

func TestNonCriticalFailureIsDegraded(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, healthyCheck)
	c.RegisterFunc("feed", false, unhealthyCheck)
	c.Check(context.Background())

	if got := c.OverallStatus(); got != StatusDegraded {
		t.Errorf("OverallStatus() = %q, want degraded", got)
	}
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, healthyCheck)

	if got := c.OverallStatus(); got != StatusUnknown {
		t.Errorf("OverallStatus() = %q, want unknown before first check", got)
	}
}

func TestCheckTimeout(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:     "slow",
		Critical: true,
		Timeout:  20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	if results["slow"].Status != StatusUnhealthy {
		t.Errorf("slow check status = %q, want unhealthy on timeout", results["slow"].Status)
	}
}

func TestCheckPanicRecovery(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("boom", true, func(ctx context.Context) CheckResult {
		panic("kaboom")
	})

	results := c.Check(context.Background())
	if results["boom"].Status != StatusUnhealthy {
		t.Errorf("panicking check status = %q, want unhealthy", results["boom"].Status)
	}
}

func TestReadinessHandler(t *testing.T) {
	c := NewChecker()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, req)
	if rec.Code != 503 {
		t.Errorf("not-ready status = %d, want 503", rec.Code)
	}

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}
}

func TestHealthHandlerFull(t *testing.T) {
	c := NewChecker()
	c.SetReady(true)
	c.RegisterFunc("store", true, healthyCheck)

	req := httptest.NewRequest("GET", "/healthz?full=true", nil)
	rec := httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("response status = %q, want healthy", resp.Status)
	}
	if _, ok := resp.Components["store"]; !ok {
		t.Error("full response missing store component")
	}
}

func TestDatabaseCheck(t *testing.T) {
	ok := DatabaseCheck(func(ctx context.Context) error { return nil })
	if got := ok(context.Background()).Status; got != StatusHealthy {
		t.Errorf("passing ping status = %q, want healthy", got)
	}

	bad := DatabaseCheck(func(ctx context.Context) error { return errors.New("locked") })
	if got := bad(context.Background()).Status; got != StatusUnhealthy {
		t.Errorf("failing ping status = %q, want unhealthy", got)
	}
}

func TestFrameFeedCheckDegrades(t *testing.T) {
	connected := false
	check := FrameFeedCheck(func() bool { return connected })

	if got := check(context.Background()).Status; got != StatusDegraded {
		t.Errorf("disconnected feed status = %q, want degraded", got)
	}

	connected = true
	if got := check(context.Background()).Status; got != StatusHealthy {
		t.Errorf("connected feed status = %q, want healthy", got)
	}
}
