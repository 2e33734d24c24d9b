package query

import (
	"context"

	"github.com/acebase-go/acebase/internal/engine"
	"github.com/acebase-go/acebase/internal/subscribe"
)

// Monitor is a live query's subscription handle (spec §4.9 "Live
// queries"). Stop unregisters every underlying subscription.
type Monitor struct {
	subs []*subscribe.Subscription
	reg  *subscribe.Registry
}

// Stop unsubscribes the monitor; no further events fire after it returns.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	for _, s := range m.subs {
		m.reg.Off(s)
	}
}

// startMonitor subscribes notify_child_added/changed/removed on q.base and
// re-evaluates p against each event's path, tracking the running matched
// set so add/change/remove transitions fire exactly as spec §4.9
// describes: "After update(...) h is called with {name:'add',...};
// subsequent update(...) -> {name:'remove',...}". matched is seeded with
// the initial result set's paths so a change event on an already-matching
// record only emits "change", never a spurious "add".
func (e *Executor) startMonitor(q *Query, p *plan, opts Options, matched map[string]bool) *Monitor {
	ctx := context.Background()
	seen := make(map[string]bool, len(matched))
	for k, v := range matched {
		seen[k] = v
	}

	reevaluate := func(ev subscribe.Event) (wasMatched, nowMatched bool, value any, err error) {
		key := ev.Path.String()
		wasMatched = seen[key]
		res, getErr := e.eng.Get(ctx, ev.Path, engine.DefaultGetOptions())
		if getErr != nil {
			return wasMatched, false, nil, getErr
		}
		if !res.Exists {
			return wasMatched, false, nil, nil
		}
		ok, matchErr := p.matches(res.Value)
		if matchErr != nil {
			return wasMatched, false, nil, matchErr
		}
		return wasMatched, ok, res.Value, nil
	}

	onAdded := func(ev subscribe.Event) bool {
		was, now, val, err := reevaluate(ev)
		if err != nil || was || !now {
			return true
		}
		seen[ev.Path.String()] = true
		if opts.Monitor.Add {
			opts.EventHandler(Event{Name: "add", Path: ev.Path, Value: snapshotValue(opts, val)})
		}
		return true
	}
	onChanged := func(ev subscribe.Event) bool {
		was, now, val, err := reevaluate(ev)
		if err != nil {
			return true
		}
		switch {
		case !was && now:
			seen[ev.Path.String()] = true
			if opts.Monitor.Add {
				opts.EventHandler(Event{Name: "add", Path: ev.Path, Value: snapshotValue(opts, val)})
			}
		case was && !now:
			delete(seen, ev.Path.String())
			if opts.Monitor.Remove {
				opts.EventHandler(Event{Name: "remove", Path: ev.Path})
			}
		case was && now:
			if opts.Monitor.Change {
				opts.EventHandler(Event{Name: "change", Path: ev.Path, Value: snapshotValue(opts, val)})
			}
		}
		return true
	}
	onRemoved := func(ev subscribe.Event) bool {
		key := ev.Path.String()
		if !seen[key] {
			return true
		}
		delete(seen, key)
		if opts.Monitor.Remove {
			opts.EventHandler(Event{Name: "remove", Path: ev.Path})
		}
		return true
	}

	mon := &Monitor{reg: e.subs}
	mon.subs = append(mon.subs, e.subs.On(q.base, subscribe.EventNotifyChildAdded, onAdded))
	mon.subs = append(mon.subs, e.subs.On(q.base, subscribe.EventNotifyChildChanged, onChanged))
	mon.subs = append(mon.subs, e.subs.On(q.base, subscribe.EventNotifyChildRemoved, onRemoved))
	return mon
}

func snapshotValue(opts Options, v any) any {
	if opts.Snapshots {
		return v
	}
	return nil
}
