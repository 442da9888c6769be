// Copyright 2026 The Freyja Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import yaml "gopkg.in/yaml.v3"

// ParseMappingSetYAML decodes a mapping generation from YAML, the format a
// file-backed MappingAdapter implementation is expected to read.
func ParseMappingSetYAML(data []byte) (map[string]Mapping, error) {
	var out map[string]Mapping
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarshalMappingSetYAML encodes a mapping generation to YAML, the inverse of
// ParseMappingSetYAML. Useful for test fixtures and for adapters that cache
// the last-seen generation to disk.
func MarshalMappingSetYAML(mappings map[string]Mapping) ([]byte, error) {
	return yaml.Marshal(mappings)
}

// ParseEntityYAML decodes a single entity from YAML, the format a
// file-backed DigitalTwinAdapter implementation is expected to read.
func ParseEntityYAML(data []byte) (Entity, error) {
	var out Entity
	if err := yaml.Unmarshal(data, &out); err != nil {
		return Entity{}, err
	}
	return out, nil
}
