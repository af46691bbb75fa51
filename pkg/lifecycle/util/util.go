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
	"math/rand"
	"sort"
	"strings"
)

// Ptr returns a pointer to the given value.
func Ptr[T any](t T) *T { return &t }

// SortKeys returns the map keys in sorted order.
func SortKeys[V any](m map[string]V) []string {
	s := make([]string, 0, len(m))
	for k := range m {
		s = append(s, k)
	}
	sort.Strings(s)
	return s
}

// RandomID returns a random lowercase alphanumeric string of length n drawn
// from the given alphabet.
func RandomID(alphabet string, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return b.String()
}

// TruncateResourceName shortens name to at most limit characters and strips
// any trailing dash left by the cut.
func TruncateResourceName(name string, limit int) string {
	if len(name) > limit {
		name = name[:limit]
	}
	return strings.TrimRight(name, "-")
}

// DoubleUnderscores rewrites an env var key for helm --set paths, where a
// single underscore is a path separator escape.
func DoubleUnderscores(key string) string {
	return strings.ReplaceAll(key, "_", "__")
}

// EscapeSlashes escapes "/" in helm --set values so helm does not interpret
// them as nested paths.
func EscapeSlashes(value string) string {
	return strings.ReplaceAll(value, "/", `\/`)
}
