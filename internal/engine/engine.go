// Package engine owns the Store adapter and constructs the bucket index,
// visitor state, write fan-out, query assembler, and user/bucket store that
// every HTTP handler shares.
package engine

import (
	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/internal/bucketindex"
	"github.com/wehriam/hiitrack/internal/fanout"
	"github.com/wehriam/hiitrack/internal/query"
	"github.com/wehriam/hiitrack/internal/store"
	"github.com/wehriam/hiitrack/internal/userstore"
	"github.com/wehriam/hiitrack/internal/visitorstate"
)

// Engine wires the core's components to a single Store and is passed to
// every HTTP handler.
type Engine struct {
	Store   store.Store
	Index   *bucketindex.Index
	Visitor *visitorstate.State
	FanOut  *fanout.FanOut
	Query   *query.Assembler
	Users   *userstore.Store
	Log     zerolog.Logger
}

// New constructs an Engine over the given Store.
func New(s store.Store, log zerolog.Logger) *Engine {
	idx := bucketindex.New(s)
	vs := visitorstate.New(s)
	return &Engine{
		Store:   s,
		Index:   idx,
		Visitor: vs,
		FanOut:  fanout.New(s, idx, vs, log),
		Query:   query.New(s, idx),
		Users:   userstore.New(s),
		Log:     log,
	}
}
