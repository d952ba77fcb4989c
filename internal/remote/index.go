package remote

import (
	"bytes"
	"context"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
)

const (
	// IdxRegistrations is the authoritative registration collection, one
	// document per person keyed by uid.
	IdxRegistrations = "registrations_v1"
	// IdxEventParticipants is the per-event check-in mirror written by the
	// push reconciler, keyed by {event}::{uid}.
	IdxEventParticipants = "event_participants_v1"
)

func EnsureIndexes(ctx context.Context, c *es.Client) error {
	mapping := `{"settings":{"number_of_shards":1},"mappings":{"dynamic":"false","properties":{
		"uid":{"type":"keyword"},"displayName":{"type":"text"},"email":{"type":"keyword"},
		"phone":{"type":"keyword"},"college":{"type":"text"},"degree":{"type":"keyword"},
		"department":{"type":"keyword"},"year":{"type":"keyword"},"events":{"type":"keyword"},
		"payments":{"type":"object","enabled":true}
	}}}`
	if err := ensure(ctx, c, IdxRegistrations, mapping); err != nil {
		return err
	}

	mapping = `{"settings":{"number_of_shards":1},"mappings":{"dynamic":"strict","properties":{
		"uid":{"type":"keyword"},"event":{"type":"keyword"},"name":{"type":"text"},
		"phone":{"type":"keyword"},"email":{"type":"keyword"},"checkedIn":{"type":"boolean"},
		"checkinTime":{"type":"date"},"source":{"type":"keyword"}
	}}}`
	return ensure(ctx, c, IdxEventParticipants, mapping)
}

func ensure(ctx context.Context, c *es.Client, index, body string) error {
	exists, _ := c.Indices.Exists([]string{index})
	if exists != nil && exists.StatusCode == 200 {
		return nil
	}
	_, err := c.Indices.Create(index, c.Indices.Create.WithBody(bytes.NewBufferString(body)), c.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	return nil
}
