package capture

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultPendingExchanges = 4096

// exchange is one open request. fetch marks promise-style calls, which skip the general API
// filter and only apply the category filters.
type exchange struct {
	url   string
	fetch bool
}

func (e exchange) categories() []Category {
	if e.fetch {
		return MatchFetch(e.url)
	}
	return MatchExchange(e.url)
}

// Exchanges follows requests seen as separate open and completion events: the URL is recorded
// when the request opens and the body is inspected when the completion event arrives.
type Exchanges struct {
	pending   *lru.Cache[string, exchange]
	publisher Publisher
}

func NewExchanges(publisher Publisher, size int) *Exchanges {
	if size <= 0 {
		size = DefaultPendingExchanges
	}
	pending, _ := lru.New[string, exchange](size)
	return &Exchanges{pending: pending, publisher: publisher}
}

// Open records an event-style request (general filter, then category filters).
func (x *Exchanges) Open(id, url string) {
	x.pending.Add(id, exchange{url: url})
}

// OpenFetch records a promise-style request (category filters only).
func (x *Exchanges) OpenFetch(id, url string) {
	x.pending.Add(id, exchange{url: url, fetch: true})
}

// Wants reports whether an open exchange will be inspected on completion.
func (x *Exchanges) Wants(id string) bool {
	ex, ok := x.pending.Peek(id)
	return ok && len(ex.categories()) > 0
}

// Complete handles the completion event of an exchange and returns the number of captures
// published. Unknown exchanges are ignored.
func (x *Exchanges) Complete(id string, body []byte) int {
	ex, ok := x.pending.Peek(id)
	if !ok {
		return 0
	}
	x.pending.Remove(id)

	categories := ex.categories()
	if len(categories) == 0 {
		return 0
	}

	transport := "exchange"
	if ex.fetch {
		transport = "fetch"
	}
	slog.Debug("Matched capture URL", "transport", transport, "url", ex.url, "categories", categories)
	return Emit(x.publisher, ex.url, body, categories)
}

// Abandon forgets an exchange that failed or was cancelled.
func (x *Exchanges) Abandon(id string) {
	x.pending.Remove(id)
}

func (x *Exchanges) Pending() int {
	return x.pending.Len()
}
