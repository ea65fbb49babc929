package execution

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/market"
)

func TestSubmitTargetWeightLogsOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	exec := NewExecutor(logger.Level(zerolog.DebugLevel), nil)
	handle, err := exec.SubmitTargetWeight("BTCUSDT", 0.25)
	if err != nil {
		t.Fatalf("SubmitTargetWeight returned error: %v", err)
	}
	if handle == "" {
		t.Fatalf("expected a handle")
	}
	out := buf.String()
	if !strings.Contains(out, "BTCUSDT") {
		t.Fatalf("log does not contain symbol: %s", out)
	}
	if !strings.Contains(out, `"dry_run":true`) {
		t.Fatalf("expected dry run flag in log: %s", out)
	}
}

type stubVenue struct {
	closed []market.Asset
	err    error
}

func (v *stubVenue) SubmitTargetWeight(asset market.Asset, weight float64) (OrderHandle, error) {
	if v.err != nil {
		return "", v.err
	}
	return OrderHandle("venue-" + string(asset)), nil
}

func (v *stubVenue) SubmitClose(asset market.Asset) (OrderHandle, error) {
	v.closed = append(v.closed, asset)
	return "venue-close", nil
}

func TestExecutorForwardsToVenue(t *testing.T) {
	venue := &stubVenue{}
	exec := NewExecutor(zerolog.Nop(), venue)

	handle, err := exec.SubmitTargetWeight("BTCUSDT", 0.1)
	if err != nil || handle != "venue-BTCUSDT" {
		t.Fatalf("expected venue handle, got %q err=%v", handle, err)
	}
	if h, _ := exec.SubmitClose("ETHUSDT"); h != "venue-close" || len(venue.closed) != 1 {
		t.Fatalf("close not forwarded: %q %v", h, venue.closed)
	}
}

func TestExecutorLogsVenueErrors(t *testing.T) {
	var buf bytes.Buffer
	venue := &stubVenue{err: Rejection("BTCUSDT", "target weight outside [0,1]")}
	exec := NewExecutor(zerolog.New(&buf), venue)

	if _, err := exec.SubmitTargetWeight("BTCUSDT", 2); !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("expected venue rejection, got %v", err)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("expected warning log, got %s", buf.String())
	}
}

func TestSubmitCloseIssuesDistinctHandles(t *testing.T) {
	exec := NewExecutor(zerolog.Nop(), nil)
	first, _ := exec.SubmitClose("ETHUSDT")
	second, _ := exec.SubmitClose("ETHUSDT")
	if first == second {
		t.Fatalf("expected unique handles, got %s twice", first)
	}
}

func TestRejectionWrapsSentinel(t *testing.T) {
	err := Rejection("SOLUSDT", "insufficient cash")
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("expected ErrOrderRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "SOLUSDT") {
		t.Fatalf("expected asset in message: %v", err)
	}
}
