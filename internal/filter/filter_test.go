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

package filter_test

import (
	"testing"

	"github.com/facebook/badvpn-go/internal/filter"
	"github.com/stretchr/testify/require"
)

func TestEmptyExpressionAllowsEverything(t *testing.T) {
	e, err := filter.Compile("")
	require.NoError(t, err)
	require.True(t, e.Allow(filter.Params{DestID: 1}))
	require.True(t, e.Allow(filter.Params{DestID: 9999, Up: false}))
}

func TestExpressionBlocksMatchingFrame(t *testing.T) {
	e, err := filter.Compile("dest_id == 9 && up")
	require.NoError(t, err)

	require.False(t, e.Allow(filter.Params{DestID: 9, Up: true}), "a frame matching the block expression must be dropped")
	require.True(t, e.Allow(filter.Params{DestID: 9, Up: false}), "up must be true for the expression to match")
	require.True(t, e.Allow(filter.Params{DestID: 5, Up: true}), "dest_id must be 9 for the expression to match")
}

func TestCompileRejectsInvalidExpression(t *testing.T) {
	_, err := filter.Compile("dest_id ==")
	require.Error(t, err)
}

func TestAllowFailsClosedOnNonBooleanResult(t *testing.T) {
	e, err := filter.Compile("dest_id + 1")
	require.NoError(t, err)
	require.False(t, e.Allow(filter.Params{DestID: 1}))
}
