package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// VolumeDiscovery keeps the feed's symbol list at the manual symbols plus the top pairs by 24h
// quote volume.
type VolumeDiscovery struct {
	log      zerolog.Logger
	feed     *Feed
	rest     *BinanceREST
	manual   []string
	top      int
	quote    string
	interval time.Duration
	mu       sync.Mutex
	lastSet  []string
}

// NewVolumeDiscovery returns nil when top is not positive or feed is nil.
func NewVolumeDiscovery(log zerolog.Logger, feed *Feed, rest *BinanceREST, manual []string, top int, refresh time.Duration) *VolumeDiscovery {
	if feed == nil || rest == nil || top <= 0 {
		return nil
	}
	if refresh <= 0 {
		refresh = 24 * time.Hour
	}
	return &VolumeDiscovery{
		log:      log,
		feed:     feed,
		rest:     rest,
		manual:   append([]string(nil), manual...),
		top:      top,
		quote:    "USDT",
		interval: refresh,
	}
}

// Start launches the refresh loop in a goroutine.
func (d *VolumeDiscovery) Start(ctx context.Context) {
	if d == nil {
		return
	}
	go d.loop(ctx)
}

func (d *VolumeDiscovery) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil {
				d.log.Warn().Err(err).Msg("symbol discovery refresh failed")
			}
		}
	}
}

// Refresh performs a single discovery cycle.
func (d *VolumeDiscovery) Refresh(ctx context.Context) error {
	if d == nil {
		return nil
	}
	discovered, err := d.rest.TopByQuoteVolume(ctx, d.top, d.quote)
	if err != nil {
		return err
	}
	combined := mergeSymbols(d.manual, discovered)
	d.feed.SetSymbols(combined)
	d.logDiscoveryChange(combined, discovered)
	return nil
}

func (d *VolumeDiscovery) logDiscoveryChange(combined, discovered []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slicesEqual(combined, d.lastSet) {
		return
	}
	prev := append([]string(nil), d.lastSet...)
	d.lastSet = append([]string(nil), combined...)
	d.log.Info().
		Strs("symbols", combined).
		Strs("discovered", discovered).
		Strs("manual", d.manual).
		Strs("previous", prev).
		Msg("updated symbol universe")
}

func mergeSymbols(manual, discovered []string) []string {
	set := make(map[string]struct{}, len(manual)+len(discovered))
	for _, list := range [][]string{manual, discovered} {
		for _, sym := range list {
			if sym = NormalizeSymbol(strings.TrimSpace(sym)); sym != "" {
				set[sym] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
