// Package rules implements the async predicate engine that decides
// whether an incoming premint is Accept/Ignore/Reject, running the rules
// concurrently and combining their verdicts into a summary. Grounded on
// the original's src/rules.rs: each Rust `rule!`/`metadata_rule!`/
// `typed_rule!` macro is a thin wrapper adapting a differently-shaped
// check function to one interface — in Go that's three small adapter
// constructors (NewRule, NewMetadataRule, NewTypedRule) returning the same Rule
// interface instead of macro-generated structs.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/premint"
	"github.com/probeum/mintpool/storage"
)

// Verdict is a rule's individual outcome.
type Verdict int

const (
	Accept Verdict = iota
	Ignore
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Accept:
		return "Accept"
	case Ignore:
		return "Ignore"
	case Reject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// Evaluation is a single rule's verdict plus, for Ignore/Reject, the
// reason.
type Evaluation struct {
	Verdict Verdict
	Reason  string
}

func AcceptEval() Evaluation          { return Evaluation{Verdict: Accept} }
func IgnoreEval(reason string) Evaluation { return Evaluation{Verdict: Ignore, Reason: reason} }
func RejectEval(reason string) Evaluation { return Evaluation{Verdict: Reject, Reason: reason} }

// ChainClient is the minimal RPC surface a kind-specific rule needs
// against a premint's target chain; satisfied by *chain.Provider.
type ChainClient interface {
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// RuleContext carries everything a rule needs beyond the premint itself:
// a read-only storage handle, the currently-stored premint for the same
// (kind, id) if any, and an optional chain RPC client.
type RuleContext struct {
	Storage  *storage.Storage
	Existing premint.Premint
	RPC      ChainClient
	Ctx      context.Context
}

// Rule is a named async predicate.
type Rule interface {
	Name() string
	Check(p premint.Premint, ctx *RuleContext) (Evaluation, error)
}

type funcRule struct {
	name string
	fn   func(premint.Premint, *RuleContext) (Evaluation, error)
}

func (r *funcRule) Name() string { return r.name }
func (r *funcRule) Check(p premint.Premint, ctx *RuleContext) (Evaluation, error) {
	return r.fn(p, ctx)
}

// NewRule adapts a plain (premint, ctx) predicate, the Go equivalent of
// the original's `rule!` macro.
func NewRule(name string, fn func(premint.Premint, *RuleContext) (Evaluation, error)) Rule {
	return &funcRule{name: name, fn: fn}
}

// NewMetadataRule adapts a predicate over only the metadata projection,
// the equivalent of `metadata_rule!` — used by the universal rules that
// never need the concrete variant.
func NewMetadataRule(name string, fn func(premint.Metadata, *RuleContext) (Evaluation, error)) Rule {
	return &funcRule{
		name: "Metadata::" + name,
		fn: func(p premint.Premint, ctx *RuleContext) (Evaluation, error) {
			return fn(p.Metadata(), ctx)
		},
	}
}

// NewTypedRule adapts a predicate that only applies to one concrete
// premint type T, ignoring every other kind — the equivalent of
// `typed_rule!`. Rules registered this way never veto premints of a
// different kind.
func NewTypedRule[T premint.Premint](name string, fn func(T, *RuleContext) (Evaluation, error)) Rule {
	return &funcRule{
		name: name,
		fn: func(p premint.Premint, ctx *RuleContext) (Evaluation, error) {
			typed, ok := p.(T)
			if !ok {
				return IgnoreEval("wrong type"), nil
			}
			return fn(typed, ctx)
		},
	}
}

// RuleResult pairs a rule's name with its outcome.
type RuleResult struct {
	RuleName string
	Eval     Evaluation
	Err      error
}

// Results is the combined-verdict summary of running every registered
// rule against one premint: error dominates, then reject, else accept.
// Ignore never vetoes. Kept as its own type (not a plain error) so
// callers can render structured 400-with-reasons vs 500, per
// SPEC_FULL.md §7.
type Results struct {
	results []RuleResult
}

func (r Results) IsError() bool {
	for _, res := range r.results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

func (r Results) IsReject() bool {
	if r.IsError() {
		return false
	}
	for _, res := range r.results {
		if res.Eval.Verdict == Reject {
			return true
		}
	}
	return false
}

func (r Results) IsAccept() bool { return !r.IsReject() && !r.IsError() }

// RejectReasons returns every rejecting rule's reason, in rule order.
func (r Results) RejectReasons() []string {
	var reasons []string
	for _, res := range r.results {
		if res.Eval.Verdict == Reject {
			reasons = append(reasons, fmt.Sprintf("%s: %s", res.RuleName, res.Eval.Reason))
		}
	}
	return reasons
}

// RejectedRuleNames returns the bare names of every rejecting rule, used
// by the controller's per-rule rejection metric (SPEC_FULL.md §4.2).
func (r Results) RejectedRuleNames() []string {
	var names []string
	for _, res := range r.results {
		if res.Eval.Verdict == Reject {
			names = append(names, res.RuleName)
		}
	}
	return names
}

// Errors returns every rule-evaluation error, in rule order.
func (r Results) Errors() []error {
	var errs []error
	for _, res := range r.results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.RuleName, res.Err))
		}
	}
	return errs
}

func (r Results) Summary() string {
	out := ""
	for i, res := range r.results {
		if i > 0 {
			out += "\n"
		}
		switch {
		case res.Err != nil:
			out += fmt.Sprintf("%s: Error (%s)", res.RuleName, res.Err)
		case res.Eval.Verdict == Accept:
			out += fmt.Sprintf("%s: Accept", res.RuleName)
		default:
			out += fmt.Sprintf("%s: %s (%s)", res.RuleName, res.Eval.Verdict, res.Eval.Reason)
		}
	}
	return out
}

// Engine holds an ordered set of rules and evaluates a premint against
// all of them concurrently.
type Engine struct {
	rules  []Rule
	useRPC bool
	rpcFor func(chainID uint64) (ChainClient, error)
}

// NewEngine constructs an empty engine. useRPC mirrors config.EnableRPC;
// rpcFor resolves a chain client lazily (nil disables RPC-backed rules
// entirely, which degrades them to Ignore).
func NewEngine(useRPC bool, rpcFor func(chainID uint64) (ChainClient, error)) *Engine {
	return &Engine{useRPC: useRPC, rpcFor: rpcFor}
}

// Add registers a rule. Per SPEC_FULL.md §4.3, this must happen before
// the engine starts evaluating — there is no runtime mutation once
// Evaluate has been called concurrently from multiple goroutines.
func (e *Engine) Add(r Rule) {
	e.rules = append(e.rules, r)
}

// AddDefaultRules registers every built-in universal and kind-specific
// rule, the equivalent of the original's `add_default_rules`.
func (e *Engine) AddDefaultRules() {
	for _, r := range UniversalRules() {
		e.Add(r)
	}
	for _, r := range ZoraV2Rules() {
		e.Add(r)
	}
}

// Evaluate runs every registered rule concurrently against p, looking up
// any existing stored version of the same (kind, id) and, if enabled, a
// chain RPC client for the premint's chain.
func (e *Engine) Evaluate(ctx context.Context, p premint.Premint, store *storage.Storage) (Results, error) {
	meta := p.Metadata()

	existing, err := store.GetForIDAndKind(meta.ID, meta.Kind)
	if err != nil && err != storage.ErrNotFound {
		return Results{}, fmt.Errorf("rules: loading existing premint: %w", err)
	}
	if err == storage.ErrNotFound {
		existing = nil
	}

	var rpc ChainClient
	if e.useRPC && meta.ChainID != 0 && e.rpcFor != nil {
		rpc, _ = e.rpcFor(meta.ChainID)
	}

	rctx := &RuleContext{Storage: store, Existing: existing, RPC: rpc, Ctx: ctx}

	results := make([]RuleResult, len(e.rules))
	var wg sync.WaitGroup
	for i, rule := range e.rules {
		wg.Add(1)
		go func(i int, rule Rule) {
			defer wg.Done()
			eval, err := safeCheck(rule, p, rctx)
			results[i] = RuleResult{RuleName: rule.Name(), Eval: eval, Err: err}
		}(i, rule)
	}
	wg.Wait()

	return Results{results: results}, nil
}

// safeCheck recovers a panicking rule into an error result rather than
// taking down the evaluating goroutine, per SPEC_FULL.md §7's "Bug"
// category ("a rule panics... the task logs and continues").
func safeCheck(rule Rule, p premint.Premint, ctx *RuleContext) (eval Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule.Check(p, ctx)
}
