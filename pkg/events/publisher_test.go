package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDecisionEvent(t *testing.T) {
	e := NewDecisionEvent(EventTransferBlocked, "acct-1", "dec-123", 0.97, "HIGH_RISK", "block")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventTransferBlocked, e.Type)
	assert.Equal(t, "risk-engine", e.Source)
	assert.Equal(t, "acct-1", e.AggregateID)
	assert.Equal(t, 1, e.Version)
	assert.False(t, e.Timestamp.IsZero())

	assert.Equal(t, "dec-123", e.Data["decision_id"])
	assert.Equal(t, 0.97, e.Data["score"])
	assert.Equal(t, "HIGH_RISK", e.Data["classification"])
	assert.Equal(t, "block", e.Data["recommendation"])
}

func TestEventIDsAreUnique(t *testing.T) {
	a := NewEvent(EventTransferAdmitted, "acct-1", nil)
	b := NewEvent(EventTransferAdmitted, "acct-1", nil)
	require.NotEqual(t, a.ID, b.ID)
}

func TestNopPublisher(t *testing.T) {
	p := NopPublisher{}
	require.NoError(t, p.Publish(context.Background(), NewEvent(EventTransferAdmitted, "acct-1", nil)))
	require.NoError(t, p.Close())
}
