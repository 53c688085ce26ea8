/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that drive the ledger through a complete
	booking and cancellation, so a demo shows the refund engine's answer for
	each notice tier without hand-crafting requests.

AVAILABLE SCENARIOS:

	full-refund:      Fixed-time session 50h out, consumer cancels → 100 %
	partial-refund:   Fixed-time session 30h out, consumer cancels → 50 %
	no-refund:        Fixed-time session 10h out, consumer cancels → 0 %, Cancelled
	provider-cancel:  Fixed-time session 2h out, provider cancels → 100 %
	open-slot-return: Open slot booked 50h out, consumer cancels → slot reopens
	confirmed:        Booked and paid 26h out, left running (join window demo)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Publish a session through the catalog
 3. Book it and confirm payment through the ledger
 4. Optionally cancel as the scenario's actor

Every step goes through booking.Ledger, so scenarios exercise the same
guards and events as real traffic.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "partial-refund"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add its script to 'scenarioScripts'

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: writeDomainError
  - booking/refund.go: tier evaluation
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/session-engine/booking"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "full-refund",
		Name:        "Full Refund",
		Description: "Session 50h away, price 5000. Consumer cancels now: 100 % back, booking Refunded, session Cancelled",
		Category:    "cancellation",
	},
	{
		ID:          "partial-refund",
		Name:        "Partial Refund",
		Description: "Session 30h away, price 4000. Consumer cancels: 50 % (2000) back, booking Refunded",
		Category:    "cancellation",
	},
	{
		ID:          "no-refund",
		Name:        "No Refund",
		Description: "Session 10h away, price 3000. Consumer cancels: nothing back, booking Cancelled",
		Category:    "cancellation",
	},
	{
		ID:          "provider-cancel",
		Name:        "Provider Cancels",
		Description: "Session 2h away, price 6000. Provider withdraws: 100 % back regardless of notice",
		Category:    "cancellation",
	},
	{
		ID:          "open-slot-return",
		Name:        "Open Slot Returned",
		Description: "Open slot booked 50h out, price 5000. Consumer cancels: full refund, slot back to Open",
		Category:    "cancellation",
	},
	{
		ID:          "confirmed",
		Name:        "Confirmed Booking",
		Description: "Session 26h away, price 4500, paid and left Scheduled",
		Category:    "lifecycle",
	},
}

// scenarioScript is one scripted walk through the ledger.
type scenarioScript struct {
	origin     booking.SessionOrigin
	hoursAhead int
	price      int64
	cancelBy   booking.Actor // empty: leave the booking confirmed
	reason     string
}

var scenarioScripts = map[string]scenarioScript{
	"full-refund":      {origin: booking.OriginFixedTime, hoursAhead: 50, price: 5000, cancelBy: booking.ActorConsumer, reason: "plans changed"},
	"partial-refund":   {origin: booking.OriginFixedTime, hoursAhead: 30, price: 4000, cancelBy: booking.ActorConsumer, reason: "plans changed"},
	"no-refund":        {origin: booking.OriginFixedTime, hoursAhead: 10, price: 3000, cancelBy: booking.ActorConsumer, reason: "overslept"},
	"provider-cancel":  {origin: booking.OriginFixedTime, hoursAhead: 2, price: 6000, cancelBy: booking.ActorProvider, reason: "provider unavailable"},
	"open-slot-return": {origin: booking.OriginOpenSlot, hoursAhead: 50, price: 5000, cancelBy: booking.ActorConsumer, reason: "plans changed"},
	"confirmed":        {origin: booking.OriginFixedTime, hoursAhead: 26, price: 4500},
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "NOT_SUPPORTED", "Scenarios need a resettable store", nil)
		return
	}

	dto, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}

	result, err := h.loadScenario(r.Context(), dto, scenarioScripts[dto.ID])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = dto.ID
	h.mu.Unlock()

	h.log.InfoContext(r.Context(), "scenario loaded", "scenario_id", dto.ID)
	writeJSON(w, http.StatusOK, result)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "NOT_SUPPORTED", "Store cannot be reset", nil)
		return
	}
	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func findScenario(id string) (ScenarioDTO, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return ScenarioDTO{}, false
}

// =============================================================================
// LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, dto ScenarioDTO, sc scenarioScript) (*ScenarioResultDTO, error) {
	if err := h.Store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}

	now := h.now().UTC()
	at := now.Add(time.Duration(sc.hoursAhead) * time.Hour)
	input := booking.SessionInput{
		ProviderID:      "provider-demo",
		Title:           dto.Name + " demo",
		Subject:         "mathematics",
		DurationMinutes: 60,
		PriceMinorUnits: sc.price,
		Currency:        "USD",
		Timezone:        "UTC",
	}

	catalog := h.Ledger.Catalog()
	var (
		s   *booking.Session
		err error
	)
	if sc.origin == booking.OriginOpenSlot {
		s, err = catalog.CreateOpenSlot(ctx, input, now)
	} else {
		s, err = catalog.CreateScheduledSession(ctx, input, at, now)
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	b, err := h.Ledger.CreateBooking(ctx, booking.CreateBookingRequest{
		SessionID:   s.ID,
		ConsumerID:  "consumer-demo",
		RequestedAt: &at,
		Now:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	b, err = h.Ledger.ConfirmPayment(ctx, b.ID, "pay_"+dto.ID, b.AmountMinorUnits, now)
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	result := &ScenarioResultDTO{Scenario: dto}
	switch sc.cancelBy {
	case "":
		if s, err = h.Ledger.GetSession(ctx, s.ID); err != nil {
			return nil, err
		}
	case booking.ActorProvider:
		var outcome *booking.CancellationOutcome
		if s, outcome, err = h.Ledger.CancelSession(ctx, s.ID, sc.cancelBy, sc.reason, now); err != nil {
			return nil, fmt.Errorf("cancel session: %w", err)
		}
		b = outcome.Booking
		result.Cancellation = toCancellationResultDTO(outcome)
	default:
		outcome, err := h.Ledger.Cancel(ctx, b.ID, sc.cancelBy, sc.reason, now)
		if err != nil {
			return nil, fmt.Errorf("cancel booking: %w", err)
		}
		s, b = outcome.Session, outcome.Booking
		result.Cancellation = toCancellationResultDTO(outcome)
	}

	result.Session = toSessionDTO(s)
	result.Booking = toBookingDTO(b)
	return result, nil
}
