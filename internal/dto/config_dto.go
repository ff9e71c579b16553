package dto

import (
	"encoding/json"
	"fmt"
)

// RunConfig is the optional "config" object of chat and ingest requests.
type RunConfig struct {
	Configurable Configurable `json:"configurable"`
}

// Configurable holds per-request overrides. Both camelCase and snake_case keys are accepted.
type Configurable struct {
	K            int                    `json:"k,omitempty"`
	QueryModel   string                 `json:"queryModel,omitempty"`
	FilterKwargs map[string]interface{} `json:"filterKwargs,omitempty"`
	// IsShared is only set by a literal JSON true; "true" or 1 leave it false.
	IsShared bool `json:"is_shared,omitempty"`
}

func (c *Configurable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("configurable must be an object: %w", err)
	}

	pick := func(keys ...string) (json.RawMessage, bool) {
		for _, k := range keys {
			if v, ok := raw[k]; ok && string(v) != "null" {
				return v, true
			}
		}
		return nil, false
	}

	var out Configurable
	if v, ok := pick("k"); ok {
		if err := json.Unmarshal(v, &out.K); err != nil {
			return fmt.Errorf("configurable.k: %w", err)
		}
	}
	if v, ok := pick("queryModel", "query_model"); ok {
		if err := json.Unmarshal(v, &out.QueryModel); err != nil {
			return fmt.Errorf("configurable.queryModel: %w", err)
		}
	}
	if v, ok := pick("filterKwargs", "filter_kwargs"); ok {
		if err := json.Unmarshal(v, &out.FilterKwargs); err != nil {
			return fmt.Errorf("configurable.filterKwargs: %w", err)
		}
	}
	if v, ok := pick("is_shared", "isShared"); ok {
		out.IsShared = string(v) == "true"
	}

	*c = out
	return nil
}

// ParseRunConfig decodes the JSON string form used by multipart uploads. Empty means no config.
func ParseRunConfig(s string) (RunConfig, error) {
	var cfg RunConfig
	if s == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}
