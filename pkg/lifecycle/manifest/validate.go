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

package manifest

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	yamlv3 "gopkg.in/yaml.v3"
)

// Validate checks that a user-provided manifest is well-formed multi-document
// YAML and that every document is a kubernetes object shape (a mapping with
// kind and metadata). It catches broken templating before anything reaches
// the cluster.
func Validate(rendered string) error {
	dec := yamlv3.NewDecoder(strings.NewReader(rendered))

	count := 0
	for {
		var doc map[string]interface{}
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "manifest document %d", count+1)
		}
		if doc == nil {
			continue
		}
		count++
		if _, ok := doc["kind"].(string); !ok {
			return errors.Errorf("manifest document %d has no kind", count)
		}
		if _, ok := doc["metadata"]; !ok {
			return errors.Errorf("manifest document %d has no metadata", count)
		}
	}
	if count == 0 {
		return errors.New("manifest contains no objects")
	}
	return nil
}
