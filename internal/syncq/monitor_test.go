package syncq

import "testing"

func TestStaticMonitorNotifiesOnTransition(t *testing.T) {
	m := NewStaticMonitor(false)
	var got []bool
	m.OnChange(func(online bool) { got = append(got, online) })

	m.SetOnline(false) // no transition
	m.SetOnline(true)
	m.SetOnline(true) // no transition
	m.SetOnline(false)

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("expected notifications [true false], got %v", got)
	}
}

func TestStaticMonitorTerminateBroadcasts(t *testing.T) {
	m := NewStaticMonitor(true)
	calls := 0
	m.OnTerminate(func() { calls++ })
	m.OnTerminate(func() { calls++ })

	m.Terminate()
	if calls != 2 {
		t.Fatalf("expected 2 terminate callbacks, got %d", calls)
	}
}

func TestStaticMonitorCallbackMayReenter(t *testing.T) {
	m := NewStaticMonitor(false)
	var seen bool
	m.OnChange(func(online bool) {
		// Listeners commonly read state back; must not deadlock.
		seen = m.IsOnline()
	})
	m.SetOnline(true)
	if !seen {
		t.Fatalf("callback observed stale state")
	}
}
