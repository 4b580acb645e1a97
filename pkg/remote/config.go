package remote

import (
	"context"
	"fmt"
)

// ConfigCommand is the command answering configuration registry lookups.
const ConfigCommand = "ucr/get"

// ConfigSource retrieves configuration values by key. Missing keys are
// omitted from the result.
type ConfigSource interface {
	GetConfig(ctx context.Context, keys []string) (map[string]string, error)
}

// ChannelConfig reads configuration through the ConfigCommand.
type ChannelConfig struct {
	Channel Channel
}

// GetConfig invokes ConfigCommand with the requested keys.
func (c ChannelConfig) GetConfig(ctx context.Context, keys []string) (map[string]string, error) {
	resp, err := c.Channel.Invoke(ctx, ConfigCommand, map[string]any{"keys": keys})
	if err != nil {
		return nil, fmt.Errorf("remote: get config: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote: get config: %s", resp.Error)
	}
	out := map[string]string{}
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("remote: decode config: %w", err)
	}
	return out, nil
}

// StaticConfig serves configuration from a fixed map.
type StaticConfig map[string]string

// GetConfig returns the requested subset.
func (c StaticConfig) GetConfig(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := c[key]; ok {
			out[key] = value
		}
	}
	return out, nil
}
