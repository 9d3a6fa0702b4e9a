package events

// EventFilter restricts the events a subscriber receives. Absent facets
// match all events; every specified facet must match.
type EventFilter struct {
	// Types restricts matching to these event types.
	Types []string

	// Categories restricts matching to these categories.
	Categories []Category

	// MinPriority, when set, rejects events below this priority.
	MinPriority *Priority
}

// MinPriorityOf is a convenience for building a filter literal.
func MinPriorityOf(p Priority) *Priority {
	return &p
}

// Matches reports whether the event passes every specified facet.
// A nil filter matches everything.
func (f *EventFilter) Matches(event Event) bool {
	if f == nil {
		return true
	}

	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if c == event.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MinPriority != nil && event.Priority < *f.MinPriority {
		return false
	}

	return true
}

// Subscriber receives matching events. Within one subscriber, events are
// delivered sequentially in publish order.
type Subscriber interface {
	HandleEvent(event Event)
}

// Filterer is an optional subscriber capability. A subscriber-provided
// filter supersedes any filter supplied at subscription time.
type Filterer interface {
	EventFilter() *EventFilter
}

// HandlerFunc adapts a plain function to the Subscriber interface.
type HandlerFunc func(event Event)

// HandleEvent invokes the wrapped function.
func (f HandlerFunc) HandleEvent(event Event) {
	f(event)
}
