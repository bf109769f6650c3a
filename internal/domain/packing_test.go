package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestOrderPacking_HappyPath(t *testing.T) {
	p := NewOrderPacking("PK-1", "ORD-1")
	assert.Equal(t, PackingNotStarted, p.Status)

	require.NoError(t, p.Start())
	assert.Equal(t, PackingInProgress, p.Status)
	assert.NotNil(t, p.StartedAt)

	require.NoError(t, p.Complete(intPtr(3), "two danish, one standard"))
	assert.Equal(t, PackingCompleted, p.Status)
	require.NotNil(t, p.TrolleysUsed)
	assert.Equal(t, 3, *p.TrolleysUsed)
	assert.True(t, p.IsDone())

	require.NoError(t, p.Verify("supervisor-amy"))
	assert.Equal(t, PackingVerified, p.Status)
	assert.Equal(t, "supervisor-amy", p.VerifiedBy)

	types := make([]string, 0, len(p.DomainEvents))
	for _, e := range p.DomainEvents {
		types = append(types, e.EventType())
	}
	assert.Equal(t, []string{"nursery.packing.started", "nursery.packing.completed", "nursery.packing.verified"}, types)
}

func TestOrderPacking_CompleteNeedsExplicitTrolleys(t *testing.T) {
	p := NewOrderPacking("PK-1", "ORD-1")
	require.NoError(t, p.Start())

	assert.ErrorIs(t, p.Complete(nil, ""), ErrTrolleysRequired)
	assert.ErrorIs(t, p.Complete(intPtr(-1), ""), ErrInvalidQuantity)
	assert.Equal(t, PackingInProgress, p.Status)

	require.NoError(t, p.Complete(intPtr(0), "hand-carried"))
	require.NotNil(t, p.TrolleysUsed)
	assert.Equal(t, 0, *p.TrolleysUsed)
}

func TestOrderPacking_OutOfOrderTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *OrderPacking)
		act   func(p *OrderPacking) error
	}{
		{
			name:  "complete before start",
			setup: func(p *OrderPacking) {},
			act:   func(p *OrderPacking) error { return p.Complete(intPtr(1), "") },
		},
		{
			name:  "verify before complete",
			setup: func(p *OrderPacking) { _ = p.Start() },
			act:   func(p *OrderPacking) error { return p.Verify("amy") },
		},
		{
			name:  "start twice",
			setup: func(p *OrderPacking) { _ = p.Start() },
			act:   func(p *OrderPacking) error { return p.Start() },
		},
		{
			name: "complete after verify",
			setup: func(p *OrderPacking) {
				_ = p.Start()
				_ = p.Complete(intPtr(1), "")
				_ = p.Verify("amy")
			},
			act: func(p *OrderPacking) error { return p.Complete(intPtr(2), "") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOrderPacking("PK-1", "ORD-1")
			tt.setup(p)
			before := p.Status

			err := tt.act(p)

			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, before, p.Status)
		})
	}
}

func TestOrderPacking_VerifyNeedsActor(t *testing.T) {
	p := NewOrderPacking("PK-1", "ORD-1")
	require.NoError(t, p.Start())
	require.NoError(t, p.Complete(intPtr(1), ""))

	assert.ErrorIs(t, p.Verify(""), ErrVerifierRequired)
	assert.Equal(t, PackingCompleted, p.Status)
}
