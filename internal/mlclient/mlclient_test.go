package mlclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidateStrategySignalApproves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ValidationResult{Approved: true, Confidence: 0.9})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	result := c.ValidateStrategySignal(context.Background(), map[string]string{"symbol": "BTC-USD"})
	if !result.Approved {
		t.Fatalf("expected approved=true, got %+v", result)
	}
}

func TestValidateStrategySignalFailsOpenOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(ValidationResult{Approved: false})
	}))
	defer srv.Close()

	c := New(srv.URL, 10*time.Millisecond)
	result := c.ValidateStrategySignal(context.Background(), map[string]string{"symbol": "BTC-USD"})
	if !result.Approved {
		t.Fatalf("expected fail-open approved=true on timeout, got %+v", result)
	}
}

func TestValidateStrategySignalFailsOpenOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	c.hc.RetryMax = 0
	result := c.ValidateStrategySignal(context.Background(), map[string]string{"symbol": "BTC-USD"})
	if !result.Approved {
		t.Fatalf("expected fail-open approved=true on server error, got %+v", result)
	}
}
