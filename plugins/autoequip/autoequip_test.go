package autoequip

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/SlastyonArtyom/BotCore/internal/client"
	"github.com/SlastyonArtyom/BotCore/internal/modules"
	"github.com/SlastyonArtyom/BotCore/internal/modules/modulestest"
)

var self = map[string]any{"id": 1, "type": "player", "self": true}

func waitSent(t *testing.T, rt *modulestest.Runtime, n int) []client.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(rt.Local.Sent()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("got %d events, want %d", len(rt.Local.Sent()), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return rt.Sent()
}

func TestEquipsAfterPickup(t *testing.T) {
	rt := modulestest.New(t, modules.Catalog{Definition()})
	rt.Autoload()

	start := time.Now()
	rt.Raise(EventCollect, self, map[string]any{"name": "iron_sword", "count": 1})
	got := waitSent(t, rt, 2)

	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("equipped after %v, want at least 250ms", elapsed)
	}
	want := []client.Message{
		{Event: EventEquip, Args: []any{map[string]any{"match": "sword", "destination": "hand"}}},
		{Event: EventEquip, Args: []any{map[string]any{"match": "shield", "destination": "off-hand"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}

	host, ok := rt.Manager.Host(Name)
	if !ok {
		t.Fatal("no host")
	}
	var timers []uint64
	rt.Do(func() error { timers = host.Timers(); return nil })
	if len(timers) != 0 {
		t.Errorf("fired timers still tracked: %v", timers)
	}
}

func TestIgnoresOtherCollectors(t *testing.T) {
	rt := modulestest.New(t, modules.Catalog{Definition()})
	rt.Autoload()

	rt.Raise(EventCollect, map[string]any{"id": 5, "type": "player", "username": "steve"})
	rt.Raise(EventCollect)
	time.Sleep(300 * time.Millisecond)
	rt.Sync()
	if sent := rt.Sent(); len(sent) != 0 {
		t.Errorf("sent %v for someone else's pickup", sent)
	}
}

func TestUnloadCancelsPendingEquip(t *testing.T) {
	rt := modulestest.New(t, modules.Catalog{Definition()})
	rt.Autoload()

	rt.Raise(EventCollect, self)
	if err := rt.Do(func() error { return rt.Manager.Unload(Name) }); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	rt.Sync()
	if sent := rt.Sent(); len(sent) != 0 {
		t.Errorf("timers survived unload: %v", sent)
	}
}

func TestCustomRules(t *testing.T) {
	rt := modulestest.New(t, modules.Catalog{Definition()})
	err := rt.Store().Write(context.Background(), Name, modules.SettingsName, Settings{
		Rules: []Rule{{Match: "axe", Destination: "hand", DelayMS: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rt.Autoload()

	rt.Raise(EventCollect, self)
	want := []client.Message{
		{Event: EventEquip, Args: []any{map[string]any{"match": "axe", "destination": "hand"}}},
	}
	if diff := cmp.Diff(want, waitSent(t, rt, 1)); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidRuleFailsLoad(t *testing.T) {
	rt := modulestest.New(t, modules.Catalog{Definition()})
	rt.Store().Write(context.Background(), Name, modules.SettingsName, Settings{
		Rules: []Rule{{Match: "axe"}},
	})
	if err := rt.Do(rt.Manager.Autoload); err == nil {
		t.Fatal("Autoload succeeded with an invalid rule")
	}
	info, err := rt.Manager.Info(Name)
	if err != nil {
		t.Fatal(err)
	}
	if info.State != modules.StateFailed {
		t.Errorf("state = %v, want Failed", info.State)
	}
	if n := rt.Events().Len(); n != 0 {
		t.Errorf("%d subscriptions left after failed load", n)
	}
}
