package match

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/inkdust2021/ringsnap/internal/rules"
)

// Result is the outcome of matching a text against a rule list.
// The zero value means no enabled rule matched.
type Result struct {
	Matched bool
	Rule    rules.Rule
	// Index 为命中规则在列表中的位置（即优先级）。
	Index int
	URL   string
}

// CompileError reports a rule whose pattern is not a valid regular expression.
type CompileError struct {
	Rule    string
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rule %q: invalid pattern %q: %v", e.Rule, e.Pattern, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Options configures an Engine.
type Options struct {
	// CaseInsensitive 为 true 时所有规则都以 (?i) 前缀编译。
	CaseInsensitive bool
	// Logger 接收非致命诊断（例如无效的正则）；为 nil 时使用 slog.Default()。
	Logger *slog.Logger
}

// maxCachedPatterns 超过后整体清空缓存；规则列表通常只有几十条。
const maxCachedPatterns = 512

type compiled struct {
	re  *regexp.Regexp
	err error
}

// Engine evaluates rule lists. It is safe for concurrent use; the only state it keeps
// is a cache of compiled patterns.
type Engine struct {
	caseInsensitive bool
	logger          *slog.Logger
	cache           sync.Map // pattern source -> *compiled
	cached          atomic.Int64
}

// New creates an engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		caseInsensitive: opts.CaseInsensitive,
		logger:          logger,
	}
}

// CaseInsensitive reports whether patterns are compiled with (?i).
func (e *Engine) CaseInsensitive() bool {
	return e.caseInsensitive
}

// Compile compiles pattern with the engine's options. Results, including failures,
// are cached per pattern source.
func (e *Engine) Compile(pattern string) (*regexp.Regexp, error) {
	c, _ := e.compile(pattern)
	return c.re, c.err
}

// Check reports whether pattern compiles with the engine's options without adding
// it to the cache. Use it for patterns that are not (yet) part of a rule set.
func (e *Engine) Check(pattern string) error {
	if v, ok := e.cache.Load(pattern); ok {
		return v.(*compiled).err
	}
	_, err := regexp.Compile(e.source(pattern))
	return err
}

func (e *Engine) source(pattern string) string {
	if e.caseInsensitive {
		return "(?i)" + pattern
	}
	return pattern
}

// compile reports fresh=true only for the call that populated the cache entry.
func (e *Engine) compile(pattern string) (*compiled, bool) {
	if v, ok := e.cache.Load(pattern); ok {
		return v.(*compiled), false
	}
	re, err := regexp.Compile(e.source(pattern))
	c := &compiled{re: re, err: err}
	v, loaded := e.cache.LoadOrStore(pattern, c)
	if loaded {
		return v.(*compiled), false
	}
	if e.cached.Add(1) > maxCachedPatterns {
		// 编辑过程中废弃的模式会一直累积：超限时清空，当前结果照常返回。
		e.cache.Range(func(k, _ any) bool {
			e.cache.Delete(k)
			return true
		})
		e.cached.Store(0)
	}
	return c, true
}

// Match returns the first enabled rule whose pattern matches text, with its URL
// template expanded. Rules with invalid patterns are skipped.
func (e *Engine) Match(rs []rules.Rule, text string) Result {
	for i := range rs {
		if res, ok := e.matchRule(rs, i, text); ok {
			return res
		}
	}
	return Result{}
}

// MatchAll returns every enabled matching rule in list order. The first element, if
// any, equals Match.
func (e *Engine) MatchAll(rs []rules.Rule, text string) []Result {
	var out []Result
	for i := range rs {
		if res, ok := e.matchRule(rs, i, text); ok {
			out = append(out, res)
		}
	}
	return out
}

func (e *Engine) matchRule(rs []rules.Rule, i int, text string) (Result, bool) {
	r := rs[i]
	if !r.Enabled {
		return Result{}, false
	}

	c, fresh := e.compile(r.Pattern)
	if c.err != nil {
		if fresh {
			// 同一个无效正则只告警一次，避免每次转换都刷日志。
			e.logger.Warn("Skipping rule with invalid pattern",
				"error", &CompileError{Rule: r.Name, Pattern: r.Pattern, Err: c.err})
		}
		return Result{}, false
	}

	loc := c.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return Result{}, false
	}

	groups := make([]string, len(loc)/2)
	for g := range groups {
		start, end := loc[2*g], loc[2*g+1]
		if start >= 0 && end >= 0 {
			groups[g] = text[start:end]
		}
	}

	return Result{
		Matched: true,
		Rule:    r,
		Index:   i,
		URL:     Expand(r.URL, text, groups),
	}, true
}
