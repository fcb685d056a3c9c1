package sink

import (
	"fmt"
	"math/big"
	"strings"
)

// Condition reports whether an event's fields satisfy one match expression.
type Condition func(fields map[string]any) bool

// CompileConditions parses sink match expressions.
// Supported operators: ==, !=, >, <, >=, <=, in, contains.
//
//	"chain_id == 56"
//	"creator in 0xabc...,0xdef..."
//	"title contains bitcoin"
func CompileConditions(exprs []string) ([]Condition, error) {
	var conds []Condition
	for _, raw := range exprs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		c, err := compileCondition(raw)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func compileCondition(expr string) (Condition, error) {
	if field, rest, ok := strings.Cut(expr, " in "); ok {
		field = strings.TrimSpace(field)
		values := make(map[string]struct{})
		for _, v := range strings.Split(rest, ",") {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				values[v] = struct{}{}
			}
		}
		if field == "" || len(values) == 0 {
			return nil, fmt.Errorf("invalid in expression: %s", expr)
		}
		return func(fields map[string]any) bool {
			v, ok := fields[field]
			if !ok {
				return false
			}
			_, hit := values[strings.ToLower(fmt.Sprint(v))]
			return hit
		}, nil
	}

	if field, needle, ok := strings.Cut(expr, " contains "); ok {
		field = strings.TrimSpace(field)
		needle = strings.ToLower(strings.TrimSpace(needle))
		if field == "" || needle == "" {
			return nil, fmt.Errorf("invalid contains expression: %s", expr)
		}
		return func(fields map[string]any) bool {
			v, ok := fields[field]
			return ok && strings.Contains(strings.ToLower(fmt.Sprint(v)), needle)
		}, nil
	}

	var op string
	for _, candidate := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if strings.Contains(expr, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return nil, fmt.Errorf("unsupported expression: %s", expr)
	}
	field, rhs, _ := strings.Cut(expr, op)
	field, rhs = strings.TrimSpace(field), strings.TrimSpace(rhs)
	if field == "" || rhs == "" {
		return nil, fmt.Errorf("invalid expression: %s", expr)
	}
	num, numeric := parseNumber(rhs)
	if !numeric && op != "==" && op != "!=" {
		return nil, fmt.Errorf("operator %s needs a numeric operand: %s", op, expr)
	}

	return func(fields map[string]any) bool {
		v, ok := fields[field]
		if !ok {
			return false
		}
		if numeric {
			lhs, ok := toNumber(v)
			if !ok {
				return false
			}
			cmp := lhs.Cmp(num)
			switch op {
			case "==":
				return cmp == 0
			case "!=":
				return cmp != 0
			case ">":
				return cmp > 0
			case "<":
				return cmp < 0
			case ">=":
				return cmp >= 0
			default:
				return cmp <= 0
			}
		}
		eq := strings.EqualFold(fmt.Sprint(v), rhs)
		if op == "==" {
			return eq
		}
		return !eq
	}, nil
}

// parseNumber accepts integers, decimals, exponents and "_" separators.
func parseNumber(s string) (*big.Float, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	f, ok := new(big.Float).SetPrec(256).SetString(s)
	return f, ok
}

func toNumber(v any) (*big.Float, bool) {
	switch n := v.(type) {
	case int:
		return new(big.Float).SetInt64(int64(n)), true
	case int64:
		return new(big.Float).SetInt64(n), true
	case uint:
		return new(big.Float).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Float).SetUint64(n), true
	case float64:
		return big.NewFloat(n), true
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Float).SetPrec(256).SetInt(n), true
	case string:
		return parseNumber(n)
	default:
		return nil, false
	}
}

// Fields flattens an event into the names match expressions refer to.
// Decoded log args are included under their ABI names.
func (e Event) Fields() map[string]any {
	out := make(map[string]any, len(e.Args)+8)
	for k, v := range e.Args {
		out[k] = v
	}
	out["kind"] = e.Kind
	out["chain_id"] = e.ChainID
	out["chain_name"] = e.ChainName
	out["debate_id"] = e.DebateID
	out["title"] = e.Title
	out["tx_hash"] = e.TxHash
	out["creator"] = e.Creator
	out["block_number"] = e.BlockNumber
	return out
}

// Router is implemented by senders that only want some events.
type Router interface {
	Accepts(Event) bool
}

// Accepts reports whether s wants ev. Senders without conditions take all.
func Accepts(s Sender, ev Event) bool {
	if r, ok := s.(Router); ok {
		return r.Accepts(ev)
	}
	return true
}

type filteredSender struct {
	Sender
	conds []Condition
}

func (f *filteredSender) Accepts(ev Event) bool {
	fields := ev.Fields()
	for _, c := range f.conds {
		if !c(fields) {
			return false
		}
	}
	return true
}

// WithConditions restricts s to events matching every expression.
func WithConditions(s Sender, exprs []string) (Sender, error) {
	conds, err := CompileConditions(exprs)
	if err != nil {
		return nil, err
	}
	if len(conds) == 0 {
		return s, nil
	}
	return &filteredSender{Sender: s, conds: conds}, nil
}
