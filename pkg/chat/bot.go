// Package chat drives the per caller conversation: it turns actions and free
// text into engine calls and renders the replies.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/r8views/pkg/engine"
	"github.com/samueltorres/r8views/pkg/proxies"
	"github.com/samueltorres/r8views/pkg/views"
)

type State string

const (
	StateIdle                State = "idle"
	StateAwaitingProxies     State = "awaiting_proxies"
	StateAwaitingViewRequest State = "awaiting_view_request"
)

type Action string

const (
	ActionStart      Action = "start"
	ActionBack       Action = "back"
	ActionAddProxy   Action = "add_proxy"
	ActionClearProxy Action = "clear_proxy"
	ActionListProxy  Action = "list_proxy"
	ActionAddView    Action = "add_view"
	ActionHelp       Action = "help"
	ActionText       Action = "text"
)

// Message is one inbound event. An empty action with text is free text.
type Message struct {
	Action Action `json:"action,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Engine is the part of *engine.Service the bot talks to.
type Engine interface {
	Status(ctx context.Context, callerID string) (engine.Status, error)
	AddProxies(ctx context.Context, callerID, raw string) (engine.AddResult, error)
	ClearProxies(ctx context.Context, callerID string) error
	ListProxies(ctx context.Context, callerID string) ([]proxies.Proxy, error)
	Submit(ctx context.Context, callerID, rawURL string, count int, done func(views.BatchResult)) (string, error)
}

type transition func(ctx context.Context, callerID string, current State, text string) (State, []string, error)

// Bot keeps the conversation state of every caller. Replies are plain text.
type Bot struct {
	engine   Engine
	notifier Notifier
	logger   *logrus.Logger

	actions map[Action]transition
	texts   map[State]transition

	mux    sync.Mutex
	states map[string]State
	locks  map[string]*sync.Mutex
}

func NewBot(e Engine, notifier Notifier, logger *logrus.Logger) *Bot {
	b := &Bot{
		engine:   e,
		notifier: notifier,
		logger:   logger,
		states:   make(map[string]State),
		locks:    make(map[string]*sync.Mutex),
	}

	b.actions = map[Action]transition{
		ActionStart:      b.menu,
		ActionBack:       b.menu,
		ActionAddProxy:   b.promptProxies,
		ActionClearProxy: b.clearProxies,
		ActionListProxy:  b.listProxies,
		ActionAddView:    b.promptViewRequest,
		ActionHelp:       b.help,
	}
	b.texts = map[State]transition{
		StateIdle:                b.addProxies,
		StateAwaitingProxies:     b.addProxies,
		StateAwaitingViewRequest: b.submitViewRequest,
	}

	return b
}

func (b *Bot) State(callerID string) State {
	b.mux.Lock()
	defer b.mux.Unlock()

	if s, ok := b.states[callerID]; ok {
		return s
	}
	return StateIdle
}

// lock serializes the messages of one caller so a transition always starts
// from the state the previous one left behind.
func (b *Bot) lock(callerID string) func() {
	b.mux.Lock()
	l, ok := b.locks[callerID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[callerID] = l
	}
	b.mux.Unlock()

	l.Lock()
	return l.Unlock
}

func (b *Bot) setState(callerID string, s State) {
	b.mux.Lock()
	defer b.mux.Unlock()

	if s == StateIdle {
		delete(b.states, callerID)
		return
	}
	b.states[callerID] = s
}

// Handle applies msg to the caller's conversation and returns the replies.
// Mistakes of the caller become replies; only persistence and other
// internal failures are returned as errors.
func (b *Bot) Handle(ctx context.Context, callerID string, msg Message) ([]string, error) {
	action := msg.Action
	if action == "" {
		action = ActionText
	}

	unlock := b.lock(callerID)
	defer unlock()

	current := b.State(callerID)

	var t transition
	if action == ActionText {
		t = b.texts[current]
	} else {
		var ok bool
		if t, ok = b.actions[action]; !ok {
			return nil, &views.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", msg.Action)}
		}
	}

	next, replies, err := t(ctx, callerID, current, strings.TrimSpace(msg.Text))
	if err != nil {
		return nil, err
	}

	b.setState(callerID, next)
	b.logger.WithFields(logrus.Fields{
		"caller": callerID,
		"action": action,
		"from":   current,
		"to":     next,
	}).Debug("conversation transition")

	return replies, nil
}

func (b *Bot) menu(ctx context.Context, callerID string, _ State, _ string) (State, []string, error) {
	summary, err := b.statusSummary(ctx, callerID)
	if err != nil {
		return StateIdle, nil, err
	}
	return StateIdle, []string{summary}, nil
}

func (b *Bot) promptProxies(_ context.Context, _ string, _ State, _ string) (State, []string, error) {
	return StateAwaitingProxies, []string{proxyFormatText}, nil
}

func (b *Bot) clearProxies(ctx context.Context, callerID string, _ State, _ string) (State, []string, error) {
	if err := b.engine.ClearProxies(ctx, callerID); err != nil {
		return StateIdle, nil, err
	}

	summary, err := b.statusSummary(ctx, callerID)
	if err != nil {
		return StateIdle, nil, err
	}
	return StateIdle, []string{"All proxies removed.", summary}, nil
}

func (b *Bot) listProxies(ctx context.Context, callerID string, _ State, _ string) (State, []string, error) {
	list, err := b.engine.ListProxies(ctx, callerID)
	if err != nil {
		return StateIdle, nil, err
	}

	if len(list) == 0 {
		return StateIdle, []string{"Your proxies\n\nYou have not added any proxy yet."}, nil
	}

	var sb strings.Builder
	sb.WriteString("Your proxies\n\n")
	for _, p := range list {
		sb.WriteString("- " + p.String() + "\n")
	}
	fmt.Fprintf(&sb, "\nTotal: %d proxies", len(list))

	return StateIdle, []string{sb.String()}, nil
}

func (b *Bot) help(_ context.Context, _ string, current State, _ string) (State, []string, error) {
	return current, []string{helpText}, nil
}

func (b *Bot) promptViewRequest(ctx context.Context, callerID string, _ State, _ string) (State, []string, error) {
	status, err := b.engine.Status(ctx, callerID)
	if err != nil {
		return StateIdle, nil, err
	}

	if status.Proxies == 0 {
		return StateIdle, []string{"Add proxies first, views are only sent through your proxies."}, nil
	}
	return StateAwaitingViewRequest, []string{viewFormatText}, nil
}

func (b *Bot) addProxies(ctx context.Context, callerID string, current State, text string) (State, []string, error) {
	res, err := b.engine.AddProxies(ctx, callerID, text)
	var verr *views.ValidationError
	if errors.As(err, &verr) {
		return current, []string{"Invalid proxy format.\n\n" + proxyFormatText}, nil
	}
	if err != nil {
		return current, nil, err
	}

	reply := "All of those proxies are already present."
	if res.Added > 0 {
		reply = fmt.Sprintf("%d proxies added. You now have %d proxies.", res.Added, res.Total)
	}

	summary, err := b.statusSummary(ctx, callerID)
	if err != nil {
		return StateIdle, nil, err
	}
	return StateIdle, []string{reply, summary}, nil
}

func (b *Bot) submitViewRequest(ctx context.Context, callerID string, current State, text string) (State, []string, error) {
	rawURL, count, ok := parseViewRequest(text)
	if !ok {
		return current, []string{"Could not read that request.\n\n" + viewFormatText}, nil
	}

	id, err := b.engine.Submit(ctx, callerID, rawURL, count, b.NotifyCompletion(callerID))

	var verr *views.ValidationError
	switch {
	case errors.As(err, &verr):
		return current, []string{"Request rejected: " + verr.Error() + "\n\n" + viewFormatText}, nil
	case errors.Is(err, engine.ErrRateLimitExceeded):
		return StateIdle, []string{"You reached the request limit for this hour, try again later."}, nil
	case errors.Is(err, engine.ErrBatchInProgress):
		return StateIdle, []string{"A batch is already running, wait for it to finish."}, nil
	case errors.Is(err, engine.ErrShuttingDown):
		return StateIdle, []string{"The service is shutting down, try again later."}, nil
	case err != nil:
		return StateIdle, nil, err
	}

	return StateIdle, []string{fmt.Sprintf("Batch %s accepted: %d views for %s. You will be notified when it finishes.", id, count, rawURL)}, nil
}

// NotifyCompletion returns a done callback that sends the batch summary to
// the caller's notifier.
func (b *Bot) NotifyCompletion(callerID string) func(views.BatchResult) {
	return func(r views.BatchResult) {
		b.notifier.Notify(callerID, completionText(r))
	}
}

func (b *Bot) statusSummary(ctx context.Context, callerID string) (string, error) {
	status, err := b.engine.Status(ctx, callerID)
	if err != nil {
		return "", err
	}

	actions := []Action{ActionAddProxy, ActionClearProxy, ActionListProxy}
	if status.Proxies > 0 {
		actions = append(actions, ActionAddView)
	}
	actions = append(actions, ActionHelp)

	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}

	return fmt.Sprintf("TikTok View Bot\n\nProxies available: %d\nRequests this hour: %d/%d\n\nActions: %s",
		status.Proxies, status.RequestsUsed, status.RequestsPerWindow, strings.Join(names, ", ")), nil
}

// parseViewRequest reads "<url> <count>".
func parseViewRequest(text string) (string, int, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", 0, false
	}

	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, false
	}
	return fields[0], count, true
}

func completionText(r views.BatchResult) string {
	status := "finished"
	if r.Cancelled {
		status = "was cancelled"
	}
	return fmt.Sprintf("Batch %s %s: %d/%d views succeeded, %d attempted, took %.1fs.",
		r.ID, status, r.Succeeded, r.Requested, r.Attempted, float64(r.DurationMs)/1000)
}

const (
	proxyFormatText = "Send proxies as host:port, separated by spaces or new lines.\n" +
		"Example: 123.45.67.89:8080 156.228.81.242:3129"

	viewFormatText = "Send the video link and the number of views.\n" +
		"Example: https://www.tiktok.com/@user/video/123 100"

	helpText = "How it works\n\n" +
		"1. add_proxy, then send your proxies.\n" +
		"2. add_view, then send \"<link> <count>\".\n" +
		"3. Every view opens the link through one of your proxies.\n\n" +
		"list_proxy shows your proxies, clear_proxy removes them, back returns to the menu."
)
