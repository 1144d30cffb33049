/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package filter implements the optional per-frame route filter: a
// boolean govaluate expression (e.g. "dest_id == 9 && up") evaluated
// against each outbound frame's routing parameters before it is
// handed to a destination's fair queue, letting an operator block
// specific peer routes via a config change instead of a rebuild
//.
package filter

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// Params is the set of variables a route_filter expression may
// reference for one candidate frame.
type Params struct {
	SourceID uint16
	DestID   uint16
	Up       bool
	Len      int
}

func (p Params) parameters() map[string]interface{} {
	return map[string]interface{}{
		"source_id": float64(p.SourceID),
		"dest_id":   float64(p.DestID),
		"up":        p.Up,
		"len":       float64(p.Len),
	}
}

// Expr is a compiled route_filter expression.
type Expr struct {
	expr *govaluate.EvaluableExpression
	src  string
}

// Compile parses a route_filter expression from config. An empty
// string compiles to an always-true filter: route_filter unset means
// unrestricted.
func Compile(expression string) (*Expr, error) {
	if expression == "" {
		return &Expr{src: expression}, nil
	}
	e, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("filter: compile %q: %w", expression, err)
	}
	return &Expr{expr: e, src: expression}, nil
}

// String returns the original expression source, "" for the
// always-true default.
func (e *Expr) String() string { return e.src }

// Allow evaluates the filter against p, returning true iff the frame
// may be routed. The expression names the frames to BLOCK (e.g.
// "dest_id == 9 && up" drops frames to a live destination 9), so
// Allow is the negation of the expression's result; a non-boolean
// result or an evaluation error both fail closed (the frame is
// blocked) rather than silently routing a frame an operator meant to
// stop.
func (e *Expr) Allow(p Params) bool {
	if e.expr == nil {
		return true
	}
	result, err := e.expr.Evaluate(p.parameters())
	if err != nil {
		return false
	}
	blocked, ok := result.(bool)
	return ok && !blocked
}
