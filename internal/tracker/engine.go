// Package tracker owns the agent-side window state: which reception windows
// are open, which customer popups exist, which shop each popup belongs to,
// and the per-customer wait clocks derived from popup heights.
package tracker

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/chatwatch/chatwatch/internal/window"
)

// CloseSink receives customer lifecycle events from the engine. The session
// ledger is the production implementation.
type CloseSink interface {
	// CustomerArrived is called once per tick with the number of customers
	// that appeared across all popups.
	CustomerArrived(n int)
	// CustomerClosed is called for each customer leaving a popup, with the
	// shop the customer is attributed to and the elapsed wait.
	CustomerClosed(shop string, wait time.Duration)
}

// Customer is one waiting customer inside a popup.
type Customer struct {
	EnterTime time.Time
}

type reception struct {
	shop      string
	firstSeen time.Time
}

type popup struct {
	createTime time.Time
	customers  []Customer
	ownerShop  string
	matched    bool
	permanent  bool
	virtualID  int // 0 until a virtual label is first needed
}

// Engine diffs window snapshots into customer events and maintains the
// popup-to-shop mapping. All methods are safe for concurrent use; a tick is
// atomic with respect to Overview reads.
type Engine struct {
	mu         sync.Mutex
	rules      *window.Rules
	receptions map[uint64]*reception
	popups     map[uint64]*popup
	nextVirtID int
	sink       CloseSink
	logger     zerolog.Logger
}

// NewEngine creates an engine feeding customer events into sink.
func NewEngine(rules *window.Rules, sink CloseSink, logger zerolog.Logger) *Engine {
	return &Engine{
		rules:      rules,
		receptions: make(map[uint64]*reception),
		popups:     make(map[uint64]*popup),
		nextVirtID: 1,
		sink:       sink,
		logger:     logger.With().Str("component", "tracker").Logger(),
	}
}

// Tick processes one window snapshot taken at now. Windows absent from the
// snapshot are treated as closed; failed snapshots must be skipped by the
// caller rather than passed in as empty.
func (e *Engine) Tick(windows []window.Window, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	currentReceptions := make(map[uint64]bool)
	currentPopups := make(map[uint64]int)

	for _, w := range windows {
		if !w.Visible {
			continue
		}
		if shop, ok := e.rules.ReceptionShop(w); ok {
			if _, seen := e.receptions[w.Handle]; !seen {
				e.receptions[w.Handle] = &reception{shop: shop, firstSeen: now}
				e.logger.Debug().Str("shop", shop).Uint64("handle", w.Handle).Msg("reception window appeared")
			}
			currentReceptions[w.Handle] = true
		} else if e.rules.IsPopup(w) {
			currentPopups[w.Handle] = w.Height
		}
	}

	for handle := range e.receptions {
		if !currentReceptions[handle] {
			delete(e.receptions, handle)
		}
	}

	e.diffPopups(currentPopups, now)
	e.flushDisappeared(currentPopups, now)
	e.matchPopups(now)
	e.bindSingleIdle(currentReceptions)
}

// diffPopups converts height changes into customer arrivals and closes.
func (e *Engine) diffPopups(current map[uint64]int, now time.Time) {
	arrived := 0
	for handle, height := range current {
		count := e.rules.CustomerCount(height)
		p, ok := e.popups[handle]
		if !ok {
			p = &popup{createTime: now}
			e.popups[handle] = p
		}
		old := len(p.customers)

		switch {
		case count > old:
			for i := old; i < count; i++ {
				p.customers = append(p.customers, Customer{EnterTime: now})
			}
			arrived += count - old

		case count < old:
			// Longest-waiting customers leave first: the external UI evicts
			// answered customers from the top of its list.
			sort.SliceStable(p.customers, func(i, j int) bool {
				return p.customers[i].EnterTime.Before(p.customers[j].EnterTime)
			})
			removed := p.customers[:old-count]
			p.customers = append([]Customer(nil), p.customers[old-count:]...)
			shop := e.shopLabel(handle, p)
			for _, c := range removed {
				e.sink.CustomerClosed(shop, now.Sub(c.EnterTime))
			}
		}
	}
	if arrived > 0 {
		e.sink.CustomerArrived(arrived)
	}
}

// flushDisappeared closes every customer of popups gone from the snapshot.
func (e *Engine) flushDisappeared(current map[uint64]int, now time.Time) {
	for handle, p := range e.popups {
		if _, ok := current[handle]; ok {
			continue
		}
		shop := e.shopLabel(handle, p)
		for _, c := range p.customers {
			e.sink.CustomerClosed(shop, now.Sub(c.EnterTime))
		}
		delete(e.popups, handle)
		e.logger.Debug().Str("shop", shop).Int("flushed", len(p.customers)).Msg("popup disappeared")
	}
}

// matchPopups re-runs the shop matching pass over all non-sticky popups.
func (e *Engine) matchPopups(now time.Time) {
	for _, p := range e.popups {
		if !p.permanent {
			p.ownerShop = ""
			p.matched = false
		}
	}
	if len(e.receptions) == 0 || len(e.popups) == 0 {
		return
	}

	// Degenerate case: one reception and one popup bind unconditionally.
	if len(e.receptions) == 1 && len(e.popups) == 1 {
		for _, p := range e.popups {
			if p.permanent {
				return
			}
			for _, r := range e.receptions {
				p.ownerShop = r.shop
				p.matched = true
			}
		}
		return
	}

	maxDiff := e.rules.MatchWindow()
	used := make(map[uint64]bool)
	for _, handle := range e.popupOrder() {
		p := e.popups[handle]
		if p.permanent {
			continue
		}
		var bestHandle uint64
		bestShop := ""
		bestDiff := time.Duration(0)
		for rh, r := range e.receptions {
			if used[rh] {
				continue
			}
			diff := p.createTime.Sub(r.firstSeen)
			if diff < 0 {
				diff = -diff
			}
			if diff < maxDiff && (bestShop == "" || diff < bestDiff) {
				bestDiff = diff
				bestShop = r.shop
				bestHandle = rh
			}
		}
		if bestShop != "" {
			p.ownerShop = bestShop
			p.matched = true
			used[bestHandle] = true
		}
	}
}

// bindSingleIdle applies the fallback: when exactly one reception window
// has no bound popup, the first unbound popup is bound to it permanently.
// The sticky binding is never revisited, even if more reception windows
// appear later; it dies with the popup.
func (e *Engine) bindSingleIdle(currentReceptions map[uint64]bool) {
	bound := make(map[string]bool)
	for _, p := range e.popups {
		if (p.matched || p.permanent) && p.ownerShop != "" {
			bound[p.ownerShop] = true
		}
	}

	idle := []string{}
	for handle := range currentReceptions {
		r, ok := e.receptions[handle]
		if ok && !bound[r.shop] {
			idle = append(idle, r.shop)
		}
	}
	if len(idle) != 1 {
		return
	}

	for _, handle := range e.popupOrder() {
		p := e.popups[handle]
		if p.matched || p.permanent {
			continue
		}
		p.ownerShop = idle[0]
		p.matched = true
		p.permanent = true
		e.logger.Debug().Str("shop", idle[0]).Msg("popup bound to single idle reception")
		return
	}
}

// popupOrder returns popup handles sorted by creation time then handle, so
// the greedy matching pass is deterministic.
func (e *Engine) popupOrder() []uint64 {
	handles := make([]uint64, 0, len(e.popups))
	for h := range e.popups {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		pi, pj := e.popups[handles[i]], e.popups[handles[j]]
		if !pi.createTime.Equal(pj.createTime) {
			return pi.createTime.Before(pj.createTime)
		}
		return handles[i] < handles[j]
	})
	return handles
}

// shopLabel resolves the shop a popup's customers are attributed to,
// allocating a stable virtual label when no reception window matched.
func (e *Engine) shopLabel(handle uint64, p *popup) string {
	if p.ownerShop != "" {
		return p.ownerShop
	}
	if p.virtualID == 0 {
		p.virtualID = e.nextVirtID
		e.nextVirtID++
	}
	return fmt.Sprintf("%s%d", e.rules.VirtualShopPrefix, p.virtualID)
}

// Overview is a consistent cross-popup view for the reporting loop.
type Overview struct {
	TotalCustomers int
	ShopCount      int
	Lines          []string
}

// Overview builds the display lines and counters the reporter ships. The
// read is atomic with respect to Tick.
func (e *Engine) Overview(now time.Time) Overview {
	e.mu.Lock()
	defer e.mu.Unlock()

	ov := Overview{ShopCount: len(e.receptions)}
	for _, p := range e.popups {
		ov.TotalCustomers += len(p.customers)
	}

	// Bound shops first, sorted by name, customers in descending wait.
	byShop := make(map[string][]Customer)
	for _, p := range e.popups {
		if (p.matched || p.permanent) && p.ownerShop != "" {
			byShop[p.ownerShop] = append(byShop[p.ownerShop], p.customers...)
		}
	}
	shops := make([]string, 0, len(byShop))
	for shop := range byShop {
		shops = append(shops, shop)
	}
	sort.Strings(shops)
	for _, shop := range shops {
		ov.Lines = append(ov.Lines, e.displayLine(shop, byShop[shop], now))
	}

	// Unbound popups under their virtual labels, only when occupied.
	for _, handle := range e.popupOrder() {
		p := e.popups[handle]
		if p.matched || p.permanent || len(p.customers) == 0 {
			continue
		}
		ov.Lines = append(ov.Lines, e.displayLine(e.shopLabel(handle, p), p.customers, now))
	}

	// Reception windows with no popup at all appear as bare shop names.
	owned := make(map[string]bool)
	for _, p := range e.popups {
		if p.ownerShop != "" {
			owned[p.ownerShop] = true
		}
	}
	idle := []string{}
	for _, r := range e.receptions {
		if !owned[r.shop] {
			idle = append(idle, r.shop)
		}
	}
	sort.Strings(idle)
	ov.Lines = append(ov.Lines, idle...)

	return ov
}

// displayLine renders one shop with its waits in descending order, capped
// at the popup's row maximum.
func (e *Engine) displayLine(shop string, customers []Customer, now time.Time) string {
	waits := make([]int, 0, len(customers))
	for _, c := range customers {
		waits = append(waits, int(now.Sub(c.EnterTime).Seconds()))
	}
	sort.Sort(sort.Reverse(sort.IntSlice(waits)))
	if len(waits) > e.rules.MaxCustomers {
		waits = waits[:e.rules.MaxCustomers]
	}
	if len(waits) == 0 {
		return shop
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s-%ds", shop, waits[0])
	pad := strings.Repeat(" ", utf8.RuneCountInString(shop))
	for _, w := range waits[1:] {
		fmt.Fprintf(&b, "\n%s-%ds", pad, w)
	}
	return b.String()
}

// Counts returns the tracked reception and popup counts, for logging.
func (e *Engine) Counts() (receptions, popups int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.receptions), len(e.popups)
}
