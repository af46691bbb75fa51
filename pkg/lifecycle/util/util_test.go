/*
Copyright 2024 The Lifecycle Authors

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

package util

import (
	"strings"
	"testing"

	"github.com/Underdog-Inc/lifecycle-sub000/testutil"
)

func TestTruncateResourceName(t *testing.T) {
	tests := []struct {
		description string
		name        string
		limit       int
		expected    string
	}{
		{
			description: "short name unchanged",
			name:        "abc-deploy-x1y2z3-1234567",
			limit:       63,
			expected:    "abc-deploy-x1y2z3-1234567",
		},
		{
			description: "cut to limit",
			name:        strings.Repeat("a", 70),
			limit:       63,
			expected:    strings.Repeat("a", 63),
		},
		{
			description: "trailing dash after cut is stripped",
			name:        strings.Repeat("a", 62) + "-bcd",
			limit:       63,
			expected:    strings.Repeat("a", 62),
		},
		{
			description: "exactly at limit",
			name:        strings.Repeat("a", 63),
			limit:       63,
			expected:    strings.Repeat("a", 63),
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			got := TruncateResourceName(test.name, test.limit)

			testutil.CheckDeepEqual(t, test.expected, got)
		})
	}
}

func TestDoubleUnderscores(t *testing.T) {
	testutil.CheckDeepEqual(t, "DATABASE__URL", DoubleUnderscores("DATABASE_URL"))
	testutil.CheckDeepEqual(t, "NOUNDERSCORE", DoubleUnderscores("NOUNDERSCORE"))
	testutil.CheckDeepEqual(t, "A____B", DoubleUnderscores("A__B"))
}

func TestEscapeSlashes(t *testing.T) {
	testutil.CheckDeepEqual(t, `registry\/org\/image`, EscapeSlashes("registry/org/image"))
	testutil.CheckDeepEqual(t, "no-slashes", EscapeSlashes("no-slashes"))
}

func TestRandomID(t *testing.T) {
	alphabet := "abc123"
	id := RandomID(alphabet, 6)

	if len(id) != 6 {
		t.Errorf("expected 6 characters, got %q", id)
	}
	for _, r := range id {
		if !strings.ContainsRune(alphabet, r) {
			t.Errorf("character %q not in alphabet", r)
		}
	}
}

func TestSortKeys(t *testing.T) {
	keys := SortKeys(map[string]int{"b": 1, "a": 2, "c": 3})

	testutil.CheckDeepEqual(t, []string{"a", "b", "c"}, keys)
}
