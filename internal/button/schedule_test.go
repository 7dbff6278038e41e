package button

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/buttond/log2"
)

type fired struct {
	at      time.Duration
	command string
	elapsed time.Duration
}

type testRunner struct {
	clock   *ManualClock
	started []fired
	waited  []string
}

func (self *testRunner) Start(command string) {
	self.started = append(self.started, fired{at: self.clock.Now(), command: command})
}

func (self *testRunner) Run(command string) error {
	self.waited = append(self.waited, command)
	return nil
}

func (self *testRunner) commands() []string {
	ss := make([]string, 0, len(self.started))
	for _, f := range self.started {
		ss = append(ss, f.command)
	}
	return ss
}

type testEnv struct {
	clock  *ManualClock
	runner *testRunner
	s      *Scheduler
	fires  []fired
}

func newTestEnv(t testing.TB, keys ...*Key) *testEnv {
	clock := &ManualClock{T: time.Second}
	env := &testEnv{clock: clock, runner: &testRunner{clock: clock}}
	env.s = NewScheduler(log2.NewTest(t, log2.LTrace), clock, env.runner, 0)
	env.s.OnFire = func(k *Key, a *Action, elapsed time.Duration) {
		env.fires = append(env.fires, fired{at: clock.Now(), command: a.Command, elapsed: elapsed})
	}
	for _, k := range keys {
		require.NoError(t, env.s.Add(k))
	}
	return env
}

// step advances clock to absolute ms since env start, firing due wakeups along the way
// with the same granularity as a loop sleeping exactly until PollTimeout.
func (self *testEnv) step(t testing.TB, toMs int) {
	target := time.Second + ms(toMs)
	for {
		require.NoError(t, self.s.FireDue())
		d, ok := self.s.Wait()
		if !ok || self.clock.Now()+d > target {
			break
		}
		self.clock.Advance(d)
	}
	self.clock.Set(target)
	require.NoError(t, self.s.FireDue())
}

func (self *testEnv) press(t testing.TB, code uint16, atMs int) {
	self.step(t, atMs)
	self.s.Notify(code, true, self.clock.Now())
}

func (self *testEnv) release(t testing.TB, code uint16, atMs int) {
	self.step(t, atMs)
	self.s.Notify(code, false, self.clock.Now())
}

func key30() *Key {
	return NewKey(30, "KEY_A", []Action{
		{Kind: Short, Threshold: ms(1000), Command: "echo short"},
		{Kind: Long, Threshold: ms(5000), Command: "echo long"},
	})
}

func TestScenarioShortPress(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())

	env.press(t, 30, 0)
	env.release(t, 30, 800)
	env.step(t, 809)
	assert.Empty(t, env.runner.started)
	env.step(t, 810)
	require.Equal(t, []string{"echo short"}, env.runner.commands())
	assert.Equal(t, time.Second+ms(810), env.runner.started[0].at)
	assert.Equal(t, ms(800), env.fires[0].elapsed)

	env.step(t, 20000)
	assert.Equal(t, []string{"echo short"}, env.runner.commands())
	assert.Equal(t, StateReleased, env.s.Key(30).State())
}

func TestScenarioLongPressHeld(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())

	env.press(t, 30, 0)
	env.step(t, 4999)
	assert.Empty(t, env.runner.started)
	env.step(t, 5000)
	require.Equal(t, []string{"echo long"}, env.runner.commands())
	assert.Equal(t, StateHandled, env.s.Key(30).State())

	// autorepeat while held is ignored
	env.press(t, 30, 6000)
	env.release(t, 30, 7000)
	assert.Equal(t, StateReleased, env.s.Key(30).State())
	env.step(t, 9000)
	assert.Equal(t, []string{"echo long"}, env.runner.commands())
}

func TestChatterCoalesced(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())

	env.press(t, 30, 0)
	// bounces shorter than 10ms debounce
	for at := 100; at < 400; at += 20 {
		env.release(t, 30, at)
		env.press(t, 30, at+5)
	}
	assert.Equal(t, time.Second, env.s.Key(30).Pressed(), "press timestamp kept from first press")
	env.release(t, 30, 600)
	env.step(t, 700)
	require.Len(t, env.fires, 1)
	assert.Equal(t, "echo short", env.fires[0].command)
	assert.Equal(t, ms(600), env.fires[0].elapsed)
}

func TestChatterAcrossShortThreshold(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())

	// logical press spans first press to last release: 1200ms, neither tier matches
	env.press(t, 30, 0)
	env.release(t, 30, 900)
	env.press(t, 30, 905)
	env.release(t, 30, 1200)
	env.step(t, 3000)
	assert.Empty(t, env.fires)
	assert.Equal(t, StateReleased, env.s.Key(30).State())
}

func TestOnlyShortReleasedLate(t *testing.T) {
	t.Parallel()
	k := NewKey(2, "", []Action{{Kind: Short, Threshold: ms(1000), Command: "short"}})
	env := newTestEnv(t, k)
	var ignored []time.Duration
	env.s.OnIgnore = func(k *Key, elapsed time.Duration) { ignored = append(ignored, elapsed) }

	env.press(t, 2, 0)
	_, armed := k.Wakeup()
	assert.False(t, armed, "no long action, no wakeup while held")
	env.release(t, 2, 1500)
	env.step(t, 2000)
	assert.Empty(t, env.fires)
	assert.Equal(t, []time.Duration{ms(1500)}, ignored)
	assert.Equal(t, StateReleased, k.State())
}

func TestLongestTierWins(t *testing.T) {
	t.Parallel()
	k := NewKey(3, "", []Action{
		{Kind: Short, Threshold: ms(500), Command: "short"},
		{Kind: Long, Threshold: ms(2000), Command: "t1"},
		{Kind: Long, Threshold: ms(4000), Command: "t2"},
	})
	env := newTestEnv(t, k)

	env.press(t, 3, 0)
	env.step(t, 3000)
	assert.Empty(t, env.fires, "wakeup armed at largest tier only")
	env.step(t, 4000)
	require.Len(t, env.fires, 1)
	assert.Equal(t, "t2", env.fires[0].command)
	env.release(t, 3, 4500)
	env.step(t, 5000)
	assert.Len(t, env.fires, 1)
}

func TestMiddleTierOnRelease(t *testing.T) {
	t.Parallel()
	k := NewKey(3, "", []Action{
		{Kind: Short, Threshold: ms(500), Command: "short"},
		{Kind: Long, Threshold: ms(2000), Command: "t1"},
		{Kind: Long, Threshold: ms(4000), Command: "t2"},
	})
	env := newTestEnv(t, k)

	env.press(t, 3, 0)
	env.release(t, 3, 2500)
	env.step(t, 3000)
	require.Len(t, env.fires, 1)
	assert.Equal(t, "t1", env.fires[0].command)
}

func TestShortThenIndependentCycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())

	env.press(t, 30, 0)
	env.release(t, 30, 100)
	env.step(t, 200)
	env.press(t, 30, 1000)
	env.release(t, 30, 1300)
	env.step(t, 1400)
	require.Len(t, env.fires, 2)
	assert.Equal(t, ms(100), env.fires[0].elapsed)
	assert.Equal(t, ms(300), env.fires[1].elapsed)
}

func TestDeterministicOrder(t *testing.T) {
	t.Parallel()
	a := NewKey(5, "", []Action{{Kind: Short, Threshold: ms(1000), Command: "a"}})
	b := NewKey(4, "", []Action{{Kind: Short, Threshold: ms(1000), Command: "b"}})
	env := newTestEnv(t, a, b)

	env.s.Notify(4, true, env.clock.Now())
	env.s.Notify(5, true, env.clock.Now())
	env.s.Notify(4, false, env.clock.Now())
	env.s.Notify(5, false, env.clock.Now())
	env.clock.AdvanceMs(50)
	require.NoError(t, env.s.FireDue())
	assert.Equal(t, []string{"a", "b"}, env.runner.commands())
}

func TestWait(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())

	_, ok := env.s.Wait()
	assert.False(t, ok)
	assert.Equal(t, -1, env.s.PollTimeout())

	env.s.Notify(30, true, env.clock.Now())
	d, ok := env.s.Wait()
	assert.True(t, ok)
	assert.Equal(t, ms(5000), d)

	env.clock.Advance(ms(4000) + 300*time.Microsecond)
	assert.Equal(t, 1000, env.s.PollTimeout(), "rounds up partial millisecond")

	env.clock.AdvanceMs(2000)
	d, ok = env.s.Wait()
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d, "overdue clamps to zero")
}

func TestUnknownKeyIgnored(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())

	assert.False(t, env.s.Notify(31, true, env.clock.Now()))
	assert.False(t, env.s.Notify(StopCode, true, env.clock.Now()))
	assert.True(t, env.s.Notify(30, true, env.clock.Now()))
}

func TestExitAfter(t *testing.T) {
	t.Parallel()
	k := NewKey(7, "", []Action{{Kind: Short, Threshold: ms(1000), Command: "bye", ExitAfter: true}})
	env := newTestEnv(t, k)

	env.s.Notify(7, true, env.clock.Now())
	env.s.Notify(7, false, env.clock.Now()+ms(10))
	env.clock.AdvanceMs(20)
	err := env.s.FireDue()
	assert.Equal(t, ErrExit, err)
	assert.Equal(t, []string{"bye"}, env.runner.waited)
	assert.Empty(t, env.runner.started)
}

func TestStopTimer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())
	require.NoError(t, env.s.AddStopTimer(ms(3000)))

	d, ok := env.s.Wait()
	require.True(t, ok)
	assert.Equal(t, ms(3000), d)
	env.clock.AdvanceMs(2999)
	require.NoError(t, env.s.FireDue())
	env.clock.AdvanceMs(1)
	assert.Equal(t, ErrExit, env.s.FireDue())
	assert.Empty(t, env.runner.waited, "stop timer has no command")
}

func TestAddDuplicate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, key30())
	assert.Error(t, env.s.Add(key30()))
	assert.Error(t, env.s.Add(&Key{Code: 9}))
}
