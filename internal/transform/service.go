package transform

import (
	"fmt"
	"sync/atomic"

	"github.com/inkdust2021/ringsnap/internal/match"
	"github.com/inkdust2021/ringsnap/internal/normalize"
	"github.com/inkdust2021/ringsnap/internal/rules"
)

// RuleSource supplies the rule list to match against. *rules.Store implements it.
type RuleSource interface {
	Snapshot() rules.RuleSet
}

// Selection provides the text the user wants to convert. The system clipboard
// implements it.
type Selection interface {
	Text() (string, error)
}

// Service turns raw captured text into a URL: normalize, take the current rules
// snapshot, match.
type Service struct {
	store  RuleSource
	engine atomic.Pointer[match.Engine]
}

// New creates a service. A nil engine is replaced by one with default options.
func New(store RuleSource, engine *match.Engine) *Service {
	s := &Service{store: store}
	s.SetEngine(engine)
	return s
}

// SetEngine swaps the engine used by subsequent calls (config reload).
func (s *Service) SetEngine(engine *match.Engine) {
	if engine == nil {
		engine = match.New(match.Options{})
	}
	s.engine.Store(engine)
}

// Engine returns the engine currently in use.
func (s *Service) Engine() *match.Engine {
	return s.engine.Load()
}

// Transform returns the first matching rule's URL for raw.
func (s *Service) Transform(raw string) match.Result {
	return s.engine.Load().Match(s.store.Snapshot(), normalize.Text(raw))
}

// TransformAll returns every candidate for raw in rule order.
func (s *Service) TransformAll(raw string) []match.Result {
	return s.engine.Load().MatchAll(s.store.Snapshot(), normalize.Text(raw))
}

// TransformSelection reads the current selection and transforms it.
func (s *Service) TransformSelection(src Selection) (match.Result, error) {
	text, err := src.Text()
	if err != nil {
		return match.Result{}, fmt.Errorf("read selection: %w", err)
	}
	return s.Transform(text), nil
}
