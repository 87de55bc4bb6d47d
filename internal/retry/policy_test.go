package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPolicyDefaultsAndClamping(t *testing.T) {
	assert.Equal(t, DefaultPolicy(), NewPolicy("", 0, 0, -1))

	p := NewPolicy(Fixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, Policy{Mode: Fixed, Initial: 2 * time.Second, Max: 2 * time.Second, MaxRetries: 5}, p)

	assert.Equal(t, Exponential, NewPolicy("bogus", 0, 0, 0).Mode)
}

func TestDelay(t *testing.T) {
	tests := []struct {
		mode Mode
		want []time.Duration
	}{
		{Fixed, []time.Duration{100, 100, 100, 100}},
		{Linear, []time.Duration{100, 200, 300, 350}},
		{Exponential, []time.Duration{100, 200, 350, 350}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p := NewPolicy(tt.mode, 100*time.Millisecond, 350*time.Millisecond, 4)
			for i, want := range tt.want {
				assert.Equal(t, want*time.Millisecond, p.Delay(i+1), "retry %d", i+1)
			}
			assert.Zero(t, p.Delay(0))
		})
	}
}

func TestExponentialDelayDoesNotOverflow(t *testing.T) {
	p := NewPolicy(Exponential, time.Second, time.Minute, 100)
	assert.Equal(t, time.Minute, p.Delay(80))
}

func TestAllows(t *testing.T) {
	p := NewPolicy(Linear, time.Second, time.Second, 2)
	assert.False(t, p.Allows(0))
	assert.True(t, p.Allows(1))
	assert.True(t, p.Allows(2))
	assert.False(t, p.Allows(3))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{Initial: 0, Max: time.Second}.Validate())
	assert.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
}
