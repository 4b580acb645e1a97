package remote

import (
	"context"
	"errors"
	"strings"
)

// RecordStore exposes create/update primitives over a Channel.
type RecordStore struct {
	Channel    Channel
	AddCommand string
	PutCommand string
}

// NewRecordStore builds a store for a command prefix such as
// "schoolwizards/computers", using "<prefix>/add" and "<prefix>/put".
func NewRecordStore(channel Channel, prefix string) RecordStore {
	prefix = strings.TrimSuffix(prefix, "/")
	return RecordStore{
		Channel:    channel,
		AddCommand: prefix + "/add",
		PutCommand: prefix + "/put",
	}
}

// Add creates a record.
func (s RecordStore) Add(ctx context.Context, values map[string]any) (Response, error) {
	return s.invoke(ctx, s.AddCommand, values)
}

// Put updates a record.
func (s RecordStore) Put(ctx context.Context, values map[string]any) (Response, error) {
	return s.invoke(ctx, s.PutCommand, values)
}

func (s RecordStore) invoke(ctx context.Context, command string, values map[string]any) (Response, error) {
	if s.Channel == nil {
		return Response{}, errors.New("remote: record store has no channel")
	}
	return s.Channel.Invoke(ctx, command, values)
}
