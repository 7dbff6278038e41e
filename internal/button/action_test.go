package button

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(x int) time.Duration { return time.Duration(x) * time.Millisecond }

func TestClassify(t *testing.T) {
	t.Parallel()

	tiered := []Action{
		{Kind: Long, Threshold: ms(10000), Command: "ten"},
		{Kind: Short, Threshold: ms(1000), Command: "short"},
		{Kind: Long, Threshold: ms(5000), Command: "five"},
	}
	SortActions(tiered)
	require.Equal(t, "short", tiered[0].Command)
	require.Equal(t, "five", tiered[1].Command)
	require.Equal(t, "ten", tiered[2].Command)

	onlyShort := []Action{{Kind: Short, Threshold: ms(1000), Command: "short"}}
	onlyLong := []Action{{Kind: Long, Threshold: ms(5000), Command: "long"}}

	cases := []struct {
		name    string
		actions []Action
		elapsed time.Duration
		expect  string
	}{
		{"tiered/zero", tiered, 0, "short"},
		{"tiered/short", tiered, ms(800), "short"},
		{"tiered/short-boundary", tiered, ms(1000), ""},
		{"tiered/gap", tiered, ms(4999), ""},
		{"tiered/five-boundary", tiered, ms(5000), "five"},
		{"tiered/five", tiered, ms(7000), "five"},
		{"tiered/ten", tiered, ms(10000), "ten"},
		{"tiered/ten-long", tiered, time.Hour, "ten"},
		{"only-short/hit", onlyShort, ms(999), "short"},
		{"only-short/miss", onlyShort, ms(1000), ""},
		{"only-short/miss-long", onlyShort, ms(3000), ""},
		{"only-long/early", onlyLong, ms(100), ""},
		{"only-long/hit", onlyLong, ms(5001), "long"},
		{"empty", nil, ms(5), ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			a := Classify(c.actions, c.elapsed)
			if c.expect == "" {
				assert.Nil(t, a)
			} else {
				require.NotNil(t, a)
				assert.Equal(t, c.expect, a.Command)
			}
		})
	}
}

func TestValidateActions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		actions   []Action
		expectErr string
	}{
		{"ok", []Action{{Kind: Short, Threshold: ms(1000)}, {Kind: Long, Threshold: ms(5000)}, {Kind: Long, Threshold: ms(8000)}}, ""},
		{"ok/short-equal-long", []Action{{Kind: Short, Threshold: ms(1000)}, {Kind: Long, Threshold: ms(1000)}}, ""},
		{"ok/only-long", []Action{{Kind: Long, Threshold: ms(1000)}}, ""},
		{"empty", nil, "no actions"},
		{"two-short", []Action{{Kind: Short, Threshold: ms(100)}, {Kind: Short, Threshold: ms(200)}}, "2 short actions"},
		{"duplicate-long", []Action{{Kind: Long, Threshold: ms(100)}, {Kind: Long, Threshold: ms(100)}}, "duplicate action"},
		{"duplicate-short", []Action{{Kind: Short, Threshold: ms(100)}, {Kind: Short, Threshold: ms(100)}}, "duplicate action"},
		{"short-exceeds-long", []Action{{Kind: Short, Threshold: ms(3000)}, {Kind: Long, Threshold: ms(2000)}}, "exceeds smallest long"},
		{"negative", []Action{{Kind: Short, Threshold: -1}}, "negative threshold"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			as := append([]Action(nil), c.actions...)
			SortActions(as)
			err := ValidateActions(as)
			if c.expectErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.IsNotValid(err), "error type %T", err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestActionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Short(<1000ms)", (&Action{Kind: Short, Threshold: ms(1000)}).String())
	assert.Equal(t, "Long(>=5000ms)+exit", (&Action{Kind: Long, Threshold: ms(5000), ExitAfter: true}).String())
}
