package pool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func statBlock(label, value string) string {
	return fmt.Sprintf(
		`<div class="dashboard-container"><div class="label">%s</div><span>%s</span></div>`,
		label, value)
}

func dashboardHTML(estimated, lifetime, unpaid string) string {
	page := `<html><body>` + statBlock("Hashrate (60s)", "5.1 TH/s")
	if estimated != "" {
		page += statBlock("Estimated Rewards In Window", estimated)
	}
	if lifetime != "" {
		page += statBlock("Lifetime Earnings", lifetime)
	}
	if unpaid != "" {
		page += statBlock("Unpaid Earnings", unpaid)
	}
	return page + `</body></html>`
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{RootURL: server.URL, Timeout: 5 * time.Second})
}

func TestFetchSnapshot(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats/bc1qtestaccount" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, dashboardHTML("0.001 BTC", "0.01 BTC", "0.002 BTC"))
	}))

	before := time.Now().UTC().Unix()
	snap, err := client.FetchSnapshot(context.Background(), "bc1qtestaccount")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.Estimated != 100000 {
		t.Fatalf("estimated = %d, want 100000", snap.Estimated)
	}
	if snap.AccountedUnpaid != 200000 {
		t.Fatalf("unpaid = %d, want 200000", snap.AccountedUnpaid)
	}
	if snap.AccountedPaid != 800000 {
		t.Fatalf("paid = %d, want 800000", snap.AccountedPaid)
	}
	if snap.Time < before || snap.Time > time.Now().UTC().Unix() {
		t.Fatalf("snapshot time %d not taken from the wall clock", snap.Time)
	}
}

func TestFetchSnapshotMissingLabel(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, dashboardHTML("0.001 BTC", "", "0.002 BTC"))
	}))

	_, err := client.FetchSnapshot(context.Background(), "acct")
	var incomplete *IncompleteDataError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteDataError, got %v", err)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0] != labelLifetime {
		t.Fatalf("missing labels mismatch: %v", incomplete.Missing)
	}
}

func TestFetchSnapshotBadStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.FetchSnapshot(context.Background(), "acct")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", fetchErr.Status)
	}
}

func TestFetchBlockEarnings(t *testing.T) {
	body := "Time,Block Hash,Share %,Share Count,Earnings,Pool Fees\n" +
		"2024-01-16 02:10:00,hash2,0.1,100,0.00002000,0.00000040\n" +
		"2024-01-15 06:32:10,hash1,0.1,100,0.00001234\n" +
		"short,row\n" +
		"\n"

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/data/csv/acct/earnings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, body)
	}))

	earnings, err := client.FetchBlockEarnings(context.Background(), "acct")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(earnings) != 2 {
		t.Fatalf("expected 2 earnings, got %d: %+v", len(earnings), earnings)
	}

	// file order is preserved: newest first, as the remote emits it
	first := earnings[0]
	if first.BlockHash != "hash2" || first.EarnedSats != 2000 || first.PoolFee != 40 {
		t.Fatalf("first record mismatch: %+v", first)
	}
	second := earnings[1]
	if second.BlockHash != "hash1" || second.EarnedSats != 1234 {
		t.Fatalf("second record mismatch: %+v", second)
	}
	if second.PoolFee != 0 {
		t.Fatalf("pool fee must default to 0 when absent, got %d", second.PoolFee)
	}
	if first.TimeAddedFirst != 0 || first.TimeUpdated != 0 {
		t.Fatalf("bookkeeping instants belong to the ingestion engine, got %+v", first)
	}
}

func TestFetchBlockEarningsBadStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.FetchBlockEarnings(context.Background(), "acct")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestFetchBlockEarningsMalformedAmount(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "header\n2024-01-15 06:32:10,hash1,a,b,not-a-number\n")
	}))

	_, err := client.FetchBlockEarnings(context.Background(), "acct")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
