package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"area/api/handlers"
	"area/database"

	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Pipeline states for one inbound event. Terminal states are dropped,
// settled and settledWithError; there is no internal retry of the pipeline,
// redelivery is the notification sender's job.
type dispatchState string

const (
	stateReceived         dispatchState = "received"
	stateRouted           dispatchState = "routed"
	stateDropped          dispatchState = "dropped"
	stateEvaluating       dispatchState = "evaluating"
	stateExecuting        dispatchState = "executing"
	stateSettled          dispatchState = "settled"
	stateSettledWithError dispatchState = "settled_with_error"
)

// Result is what an inbound endpoint answers the notification sender.
// Status chooses redelivery behavior: most providers redeliver on non-2xx,
// so transient internal failures must not answer 200.
type Result struct {
	Status int    `json:"-"`
	Detail string `json:"detail"`
}

const (
	DetailNoActionNeeded  = "No action needed"
	DetailAreaNotFound    = "Area not found"
	DetailTriggerNotFired = "Trigger not fired"
	DetailFiredExecuted   = "Trigger fired and reaction executed"
	DetailAccountMismatch = "Account mismatch"
	DetailMissingHeaders  = "Missing headers"
	DetailEvaluateFailed  = "Trigger evaluation failed"
	DetailExecuteFailed   = "Reaction execution failed"
	DetailStoreFailed     = "Store unavailable"
)

// Orchestrator coordinates routing, trigger evaluation and reaction
// execution for each inbound event, with per-candidate failure isolation.
type Orchestrator struct {
	DB            *gorm.DB
	Registry      *handlers.Registry
	Credentials   *CredentialStore
	Evaluator     *TriggerEvaluator
	Executor      *ReactionExecutor
	Subscriptions *SubscriptionManager
}

func NewOrchestrator(db *gorm.DB, registry *handlers.Registry, oauthConfigs map[string]*oauth2.Config) *Orchestrator {
	credentials := NewCredentialStore(db, oauthConfigs)
	return &Orchestrator{
		DB:            db,
		Registry:      registry,
		Credentials:   credentials,
		Evaluator:     &TriggerEvaluator{Registry: registry, Credentials: credentials},
		Executor:      &ReactionExecutor{Registry: registry, Credentials: credentials},
		Subscriptions: &SubscriptionManager{Registry: registry, Credentials: credentials},
	}
}

func (o *Orchestrator) transition(areaUUID string, from dispatchState, to dispatchState) dispatchState {
	log.Printf("[Dispatch] area=%s %s -> %s", areaUUID, from, to)
	return to
}

// HandleChannelEvent runs the pipeline for a channel-keyed notification
// (push-subscription model): exactly one candidate Area, resolved by the
// (channel id, resource id) pair.
func (o *Orchestrator) HandleChannelEvent(ctx context.Context, channelID string, resourceID string, resourceState string, payload json.RawMessage) Result {
	state := stateReceived

	if channelID == "" || resourceID == "" {
		return Result{Status: http.StatusBadRequest, Detail: DetailMissingHeaders}
	}

	// Sync and other non-"exists" states are the provider handshaking or
	// confirming the channel, not a resource change.
	if resourceState != "exists" {
		o.transition("-", state, stateDropped)
		return Result{Status: http.StatusOK, Detail: DetailNoActionNeeded}
	}

	area, err := o.routeChannelEvent(channelID, resourceID)
	if err != nil {
		if errors.Is(err, database.ErrAreaNotFound) {
			o.transition("-", state, stateDropped)
			return Result{Status: http.StatusNotFound, Detail: DetailAreaNotFound}
		}
		// Transient store failure: answer non-2xx so the provider redelivers.
		log.Printf("[Dispatch] channel %s: store error: %v", channelID, err)
		return Result{Status: http.StatusInternalServerError, Detail: DetailStoreFailed}
	}
	return o.dispatchToArea(ctx, state, area, payload)
}

// HandleAccountChannelEvent runs the channel-keyed pipeline for pushes whose
// only correlation key is the channel identity itself: a Gmail push names the
// watched address and carries a fresh history id each delivery, so the
// resource id cannot take part in routing.
func (o *Orchestrator) HandleAccountChannelEvent(ctx context.Context, channelID string, payload json.RawMessage) Result {
	state := stateReceived

	if channelID == "" {
		return Result{Status: http.StatusBadRequest, Detail: DetailMissingHeaders}
	}

	area, err := database.FindAreaByChannel(o.DB, channelID)
	if err != nil {
		if errors.Is(err, database.ErrAreaNotFound) {
			o.transition("-", state, stateDropped)
			return Result{Status: http.StatusNotFound, Detail: DetailAreaNotFound}
		}
		log.Printf("[Dispatch] channel %s: store error: %v", channelID, err)
		return Result{Status: http.StatusInternalServerError, Detail: DetailStoreFailed}
	}
	return o.dispatchToArea(ctx, state, area, payload)
}

// dispatchToArea evaluates and executes a single routed candidate.
func (o *Orchestrator) dispatchToArea(ctx context.Context, state dispatchState, area *database.Area, payload json.RawMessage) Result {
	state = o.transition(area.UUID, state, stateRouted)

	if !area.IsActive {
		o.transition(area.UUID, state, stateDropped)
		return Result{Status: http.StatusOK, Detail: DetailNoActionNeeded}
	}

	state = o.transition(area.UUID, state, stateEvaluating)
	fired, err := o.Evaluator.Evaluate(ctx, area, payload)
	if err != nil {
		o.transition(area.UUID, state, stateSettledWithError)
		log.Printf("[Dispatch] area=%s service=%s action=%s checkTrigger: %v", area.UUID, area.ActionServiceType, area.ActionName, err)
		return Result{Status: http.StatusInternalServerError, Detail: DetailEvaluateFailed}
	}
	if !fired {
		o.transition(area.UUID, state, stateSettled)
		return Result{Status: http.StatusOK, Detail: DetailTriggerNotFired}
	}

	state = o.transition(area.UUID, state, stateExecuting)
	if err := o.Executor.Execute(ctx, area); err != nil {
		o.transition(area.UUID, state, stateSettledWithError)
		log.Printf("[Dispatch] area=%s service=%s reaction=%s executeReaction: %v", area.UUID, area.ReactionServiceType, area.ReactionName, err)
		return Result{Status: http.StatusInternalServerError, Detail: DetailExecuteFailed}
	}

	o.transition(area.UUID, state, stateSettled)
	return Result{Status: http.StatusOK, Detail: DetailFiredExecuted}
}

// HandleActionEvent runs the pipeline for an action-name + account-keyed
// notification. Multiple candidate Areas are processed with per-candidate
// error capture: one Area's failure never blocks another's reaction.
func (o *Orchestrator) HandleActionEvent(ctx context.Context, serviceType string, actionName string, account string, payload json.RawMessage) Result {
	state := stateReceived

	spec, err := o.Registry.ActionSpec(serviceType, actionName)
	if err != nil {
		o.transition("-", state, stateDropped)
		return Result{Status: http.StatusNotFound, Detail: DetailAreaNotFound}
	}

	candidates, err := o.routeActionEvent(serviceType, actionName)
	if err != nil {
		log.Printf("[Dispatch] action %s/%s: store error: %v", serviceType, actionName, err)
		return Result{Status: http.StatusInternalServerError, Detail: DetailStoreFailed}
	}
	if len(candidates) == 0 {
		o.transition("-", state, stateDropped)
		return Result{Status: http.StatusNotFound, Detail: DetailAreaNotFound}
	}
	state = o.transition("-", state, stateRouted)

	var executed, notFired, mismatched, evaluateFailed, executeFailed int
	for i := range candidates {
		area := &candidates[i]

		params, err := area.ActionParams()
		if err != nil {
			log.Printf("[Dispatch] area=%s bad action data: %v", area.UUID, err)
			evaluateFailed++
			continue
		}

		// Re-validate the account binding per candidate. A mismatch is
		// reported, not silently swallowed as "no match".
		if spec.AccountParam != "" && params[spec.AccountParam] != account {
			log.Printf("[Dispatch] area=%s %v: bound %q != payload %q", area.UUID, ErrAccountMismatch, params[spec.AccountParam], account)
			mismatched++
			continue
		}

		o.transition(area.UUID, state, stateEvaluating)
		fired, err := o.Evaluator.Evaluate(ctx, area, payload)
		if err != nil {
			o.transition(area.UUID, stateEvaluating, stateSettledWithError)
			log.Printf("[Dispatch] area=%s service=%s action=%s checkTrigger: %v", area.UUID, serviceType, actionName, err)
			evaluateFailed++
			continue
		}
		if !fired {
			o.transition(area.UUID, stateEvaluating, stateSettled)
			notFired++
			continue
		}

		o.transition(area.UUID, stateEvaluating, stateExecuting)
		if err := o.Executor.Execute(ctx, area); err != nil {
			o.transition(area.UUID, stateExecuting, stateSettledWithError)
			log.Printf("[Dispatch] area=%s service=%s reaction=%s executeReaction: %v", area.UUID, area.ReactionServiceType, area.ReactionName, err)
			executeFailed++
			continue
		}
		o.transition(area.UUID, stateExecuting, stateSettled)
		executed++
	}

	switch {
	case executed > 0:
		return Result{Status: http.StatusOK, Detail: DetailFiredExecuted}
	case executeFailed > 0:
		return Result{Status: http.StatusInternalServerError, Detail: DetailExecuteFailed}
	case notFired > 0:
		return Result{Status: http.StatusOK, Detail: DetailTriggerNotFired}
	case mismatched > 0:
		return Result{Status: http.StatusBadRequest, Detail: DetailAccountMismatch}
	default:
		return Result{Status: http.StatusInternalServerError, Detail: DetailEvaluateFailed}
	}
}

// PollArea runs the pipeline for one Area whose action is polled rather than
// notified; the scheduler calls this on the recency-window cadence.
func (o *Orchestrator) PollArea(ctx context.Context, areaID uint) error {
	var area database.Area
	if err := o.DB.First(&area, areaID).Error; err != nil {
		return err
	}
	if !area.IsActive {
		return nil
	}

	fired, err := o.Evaluator.Evaluate(ctx, &area, nil)
	if err != nil {
		return err
	}
	if !fired {
		return nil
	}

	log.Printf("[Dispatch] area=%s poll fired, executing %s/%s", area.UUID, area.ReactionServiceType, area.ReactionName)
	return o.Executor.Execute(ctx, &area)
}
