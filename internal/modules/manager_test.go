package modules

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/SlastyonArtyom/BotCore/internal/client"
	"github.com/SlastyonArtyom/BotCore/internal/command"
	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/events"
	"github.com/SlastyonArtyom/BotCore/internal/loop"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

type testRuntime struct {
	cfg      *config.Config
	client   *client.Local
	commands *command.Registry
	events   *events.Registry
	loop     *loop.Loop
	store    config.Store
	logger   *log.Logger
	shutdown int
}

func newTestRuntime(t *testing.T) *testRuntime {
	t.Helper()
	logger := shared.Discard()
	c := client.NewLocal(logger)
	store, err := config.NewFileStore(t.TempDir(), config.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	l := loop.New(logger)
	t.Cleanup(l.Stop)
	return &testRuntime{
		cfg:      config.Default(),
		client:   c,
		commands: command.NewRegistry(logger),
		events:   events.NewRegistry(c, events.WithLogger(logger)),
		loop:     l,
		store:    store,
		logger:   logger,
	}
}

func (r *testRuntime) Config() *config.Config          { return r.cfg }
func (r *testRuntime) Client() client.Client           { return r.client }
func (r *testRuntime) Commands() *command.Registry     { return r.commands }
func (r *testRuntime) Events() *events.Registry        { return r.events }
func (r *testRuntime) Loop() *loop.Loop                { return r.loop }
func (r *testRuntime) Store() config.Store             { return r.store }
func (r *testRuntime) Logger() *log.Logger             { return r.logger }
func (r *testRuntime) RequestShutdown()                { r.shutdown++ }
func (r *testRuntime) UnregisterEvent(id string) error { return r.events.Unregister(id) }
func (r *testRuntime) RegisterEvent(typ string, h events.Handler, once bool) (string, error) {
	return r.events.Register(typ, h, once)
}

// fakeModule registers one subscription, one command and one timer per
// load and can be told to fail or panic.
type fakeModule struct {
	name      string
	loads     int
	unloads   int
	loadErr   error
	unloadErr error
	panicOn   string
	cleanup   bool
	needs     string
	lookupErr error
	hits      int
	subID     string
}

func (m *fakeModule) Load(h *Host) error {
	m.loads++
	if m.needs != "" {
		_, m.lookupErr = h.Module(m.needs)
	}
	id, err := h.On("hit", func(...any) { m.hits++ })
	if err != nil {
		return err
	}
	m.subID = id
	if err := h.AddCommand(command.Command{
		Name: m.name + "-cmd",
		Run:  func(w io.Writer, _ string) {},
	}); err != nil {
		return err
	}
	h.Every(time.Hour, func() {})
	if m.panicOn == "load" {
		panic("load exploded")
	}
	return m.loadErr
}

func (m *fakeModule) Unload(h *Host) error {
	m.unloads++
	if m.panicOn == "unload" {
		panic("unload exploded")
	}
	if m.cleanup {
		if err := h.Off(m.subID); err != nil {
			return err
		}
		if err := h.RemoveCommand(m.name + "-cmd"); err != nil {
			return err
		}
	}
	return m.unloadErr
}

type settingsModule struct {
	fakeModule
}

type settings struct {
	Delay int    `json:"delay"`
	Greet string `json:"greet"`
}

func (m *settingsModule) DefaultConfig() any {
	return settings{Delay: 150, Greet: "hello"}
}

func define(mods ...*fakeModule) Catalog {
	var cat Catalog
	for _, m := range mods {
		cat = append(cat, Definition{Name: m.name, New: func() Module { return m }})
	}
	return cat
}

func TestLoadUnloadLeavesNothingBehind(t *testing.T) {
	for _, cleanup := range []bool{true, false} {
		rt := newTestRuntime(t)
		mod := &fakeModule{name: "alpha", cleanup: cleanup}
		m := NewManager(rt, define(mod))

		if err := m.Autoload(); err != nil {
			t.Fatal(err)
		}
		info, _ := m.Info("alpha")
		if info.State != StateLoaded || info.Subscriptions != 1 || info.Commands != 1 || info.Timers != 1 {
			t.Fatalf("after load: %+v", info)
		}

		if err := m.Unload("alpha"); err != nil {
			t.Fatal(err)
		}
		h, _ := m.Host("alpha")
		if len(h.Subscriptions()) != 0 || len(h.CommandNames()) != 0 || len(h.Timers()) != 0 {
			t.Errorf("cleanup=%v: host still owns resources", cleanup)
		}
		if rt.events.Len() != 0 || rt.commands.Len() != 0 || rt.loop.Timers() != 0 {
			t.Errorf("cleanup=%v: events=%d commands=%d timers=%d, want zeros",
				cleanup, rt.events.Len(), rt.commands.Len(), rt.loop.Timers())
		}

		rt.client.Raise("hit")
		if mod.hits != 0 {
			t.Errorf("cleanup=%v: handler ran after unload", cleanup)
		}
	}
}

type paddedModule struct{}

func (paddedModule) Load(h *Host) error {
	return h.AddCommand(command.Command{Name: " pad ", Run: func(io.Writer, string) {}})
}

func (paddedModule) Unload(*Host) error { return nil }

func TestPaddedCommandReleasedOnUnload(t *testing.T) {
	rt := newTestRuntime(t)
	m := NewManager(rt, Catalog{{Name: "pad", New: func() Module { return paddedModule{} }}})
	if err := m.Autoload(); err != nil {
		t.Fatal(err)
	}
	h, _ := m.Host("pad")
	if diff := cmp.Diff([]string{"pad"}, h.CommandNames()); diff != "" {
		t.Errorf("CommandNames mismatch (-want +got):\n%s", diff)
	}

	if err := m.Unload("pad"); err != nil {
		t.Fatal(err)
	}
	if rt.commands.Len() != 0 {
		t.Fatalf("commands left after unload: %v", rt.commands.Names())
	}
	if err := m.Load("pad"); err != nil {
		t.Fatalf("reload: %v", err)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	rt := newTestRuntime(t)
	mod := &fakeModule{name: "alpha"}
	m := NewManager(rt, define(mod))

	if err := m.Autoload(); err != nil {
		t.Fatal(err)
	}
	if err := m.Load("alpha"); err != nil {
		t.Fatal(err)
	}
	if mod.loads != 1 {
		t.Errorf("loads = %d, want 1", mod.loads)
	}
	if rt.events.Len() != 1 || rt.commands.Len() != 1 {
		t.Errorf("duplicate registrations: events=%d commands=%d", rt.events.Len(), rt.commands.Len())
	}

	if err := m.Unload("alpha"); err != nil {
		t.Fatal(err)
	}
	if err := m.Unload("alpha"); err != nil {
		t.Fatalf("second unload = %v, want nil", err)
	}
	if mod.unloads != 1 {
		t.Errorf("unloads = %d, want 1", mod.unloads)
	}
}

func TestUnloadAllIsolatesFailures(t *testing.T) {
	rt := newTestRuntime(t)
	first := &fakeModule{name: "first"}
	failing := &fakeModule{name: "failing", unloadErr: errors.New("boom")}
	panicking := &fakeModule{name: "panicking", panicOn: "unload"}
	last := &fakeModule{name: "last"}
	m := NewManager(rt, define(first, failing, panicking, last))

	if err := m.Autoload(); err != nil {
		t.Fatal(err)
	}
	m.UnloadAll()

	for _, info := range m.List() {
		if info.State != StateUnloaded {
			t.Errorf("%s state = %s, want Unloaded", info.Name, info.State)
		}
	}
	for _, mod := range []*fakeModule{first, failing, panicking, last} {
		if mod.unloads != 1 {
			t.Errorf("%s unloads = %d, want 1", mod.name, mod.unloads)
		}
	}
	if rt.events.Len() != 0 || rt.commands.Len() != 0 {
		t.Errorf("leftovers: events=%d commands=%d", rt.events.Len(), rt.commands.Len())
	}
	info, _ := m.Info("failing")
	if info.Err == nil || !strings.Contains(info.Err.Error(), "boom") {
		t.Errorf("failing module error = %v", info.Err)
	}
}

func TestUnloadAllReverseOrder(t *testing.T) {
	rt := newTestRuntime(t)
	var order []string
	cat := Catalog{}
	for _, name := range []string{"aa", "bb", "cc"} {
		cat = append(cat, Definition{Name: name, New: func() Module {
			return &orderModule{name: name, order: &order}
		}})
	}
	m := NewManager(rt, cat)
	if err := m.Autoload(); err != nil {
		t.Fatal(err)
	}
	m.UnloadAll()

	want := []string{"load aa", "load bb", "load cc", "unload cc", "unload bb", "unload aa"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

type orderModule struct {
	name  string
	order *[]string
}

func (m *orderModule) Load(*Host) error {
	*m.order = append(*m.order, "load "+m.name)
	return nil
}

func (m *orderModule) Unload(*Host) error {
	*m.order = append(*m.order, "unload "+m.name)
	return nil
}

func TestModuleLookupFollowsDefinitionOrder(t *testing.T) {
	rt := newTestRuntime(t)
	early := &fakeModule{name: "early", needs: "late"}
	late := &fakeModule{name: "late"}
	after := &fakeModule{name: "after", needs: "early"}
	m := NewManager(rt, define(early, late, after))

	if err := m.Autoload(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(early.lookupErr, ErrModuleNotFound) {
		t.Errorf("lookup of later module = %v, want ErrModuleNotFound", early.lookupErr)
	}
	if after.lookupErr != nil {
		t.Errorf("lookup of earlier module = %v, want nil", after.lookupErr)
	}

	if _, err := m.Get("missing"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("Get(missing) = %v, want ErrModuleNotFound", err)
	}
	m.Unload("late")
	if _, err := m.Get("late"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("Get(unloaded) = %v, want ErrModuleNotFound", err)
	}
	got, err := m.Get("after")
	if err != nil || got != Module(after) {
		t.Errorf("Get(after) = %v, %v", got, err)
	}
}

func TestFailedLoadRollsBack(t *testing.T) {
	tests := []struct {
		name string
		mod  *fakeModule
	}{
		{"error", &fakeModule{name: "broken", loadErr: errors.New("no target")}},
		{"panic", &fakeModule{name: "broken", panicOn: "load"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t)
			healthy := &fakeModule{name: "healthy"}
			m := NewManager(rt, define(tc.mod, healthy))

			if err := m.Autoload(); err == nil {
				t.Fatal("Autoload() = nil, want load error")
			}
			info, _ := m.Info("broken")
			if info.State != StateFailed || info.Err == nil {
				t.Errorf("broken info = %+v, want Failed with error", info)
			}
			if _, err := m.Get("broken"); !errors.Is(err, ErrModuleNotFound) {
				t.Errorf("Get(broken) = %v, want ErrModuleNotFound", err)
			}
			if rt.events.Len() != 1 || rt.commands.Len() != 1 || rt.loop.Timers() != 1 {
				t.Errorf("only healthy should hold resources: events=%d commands=%d timers=%d",
					rt.events.Len(), rt.commands.Len(), rt.loop.Timers())
			}
			if !rt.commands.Exists("healthy-cmd") {
				t.Error("healthy module command missing")
			}
		})
	}
}

func TestReload(t *testing.T) {
	rt := newTestRuntime(t)
	mod := &fakeModule{name: "alpha"}
	m := NewManager(rt, define(mod))
	if err := m.Autoload(); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload("alpha"); err != nil {
		t.Fatal(err)
	}
	if mod.loads != 2 || mod.unloads != 1 {
		t.Errorf("loads=%d unloads=%d, want 2 and 1", mod.loads, mod.unloads)
	}
	if rt.events.Len() != 1 || rt.commands.Len() != 1 {
		t.Errorf("after reload: events=%d commands=%d", rt.events.Len(), rt.commands.Len())
	}
	if err := m.Reload("ghost"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("Reload(ghost) = %v, want ErrModuleNotFound", err)
	}
}

func TestDisabledModules(t *testing.T) {
	rt := newTestRuntime(t)
	rt.cfg.Modules.Disabled = []string{"beta"}
	alpha := &fakeModule{name: "alpha"}
	beta := &fakeModule{name: "beta"}
	m := NewManager(rt, define(alpha, beta))

	if err := m.Autoload(); err != nil {
		t.Fatal(err)
	}
	info, _ := m.Info("beta")
	if info.State != StateDisabled || beta.loads != 0 {
		t.Fatalf("beta = %+v loads=%d, want Disabled and never loaded", info, beta.loads)
	}
	if err := m.Load("beta"); err != nil {
		t.Fatal(err)
	}
	if info, _ := m.Info("beta"); info.State != StateLoaded {
		t.Errorf("explicit load state = %s, want Loaded", info.State)
	}
}

func TestAutoloadRejectsBadDefinitions(t *testing.T) {
	rt := newTestRuntime(t)
	constructed := 0
	cat := Catalog{
		{Name: "alpha", New: func() Module { constructed++; return &fakeModule{name: "alpha"} }},
		{Name: "alpha", New: func() Module { constructed++; return &fakeModule{name: "alpha2"} }},
		{Name: "Bad Name", New: func() Module { return &fakeModule{name: "bad"} }},
		{Name: "nilctor"},
		{Name: "panicky", New: func() Module { panic("ctor") }},
	}
	m := NewManager(rt, cat)

	err := m.Autoload()
	if !errors.Is(err, ErrDuplicateModule) {
		t.Errorf("Autoload() = %v, want ErrDuplicateModule in chain", err)
	}
	if constructed != 1 {
		t.Errorf("constructed = %d, want 1", constructed)
	}

	var names []string
	for _, info := range m.List() {
		names = append(names, info.Name+":"+info.State.String())
	}
	want := []string{"alpha:Loaded", "panicky:Failed"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	if err := m.Autoload(); err != nil {
		t.Errorf("second Autoload() = %v, want nil", err)
	}
	if constructed != 1 {
		t.Errorf("second Autoload constructed again: %d", constructed)
	}
}

func TestDefaultConfigWrittenOnce(t *testing.T) {
	rt := newTestRuntime(t)
	mod := &settingsModule{fakeModule{name: "gear"}}
	m := NewManager(rt, Catalog{{Name: "gear", New: func() Module { return mod }}})
	if err := m.Autoload(); err != nil {
		t.Fatal(err)
	}

	h, _ := m.Host("gear")
	var got settings
	if err := h.ReadConfig(SettingsName, &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(settings{Delay: 150, Greet: "hello"}, got); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}

	if err := h.WriteConfig(SettingsName, settings{Delay: 999}); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload("gear"); err != nil {
		t.Fatal(err)
	}
	if err := h.ReadConfig(SettingsName, &got); err != nil {
		t.Fatal(err)
	}
	if got.Delay != 999 {
		t.Errorf("reload overwrote stored settings: %+v", got)
	}
}

func TestHostOwnership(t *testing.T) {
	rt := newTestRuntime(t)
	m := NewManager(rt, nil)
	a := newHost("alpha", rt, m)
	b := newHost("beta", rt, m)

	id, err := a.On("hit", func(...any) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Off(id); !errors.Is(err, events.ErrEventNotFound) {
		t.Errorf("foreign Off = %v, want ErrEventNotFound", err)
	}
	if err := a.Off(id); err != nil {
		t.Fatal(err)
	}
	if err := a.Off(id); !errors.Is(err, events.ErrEventNotFound) {
		t.Errorf("second Off = %v, want ErrEventNotFound", err)
	}

	if err := a.AddCommand(command.Command{Name: "attack", Run: func(io.Writer, string) {}}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddCommand(command.Command{Name: "attack", Run: func(io.Writer, string) {}}); !errors.Is(err, command.ErrCommandExists) {
		t.Errorf("duplicate AddCommand = %v, want ErrCommandExists", err)
	}
	if err := b.RemoveCommand("attack"); !errors.Is(err, command.ErrCommandNotFound) {
		t.Errorf("foreign RemoveCommand = %v, want ErrCommandNotFound", err)
	}
	if diff := cmp.Diff([]string{"attack"}, a.CommandNames()); diff != "" {
		t.Errorf("CommandNames mismatch (-want +got):\n%s", diff)
	}

	timer := a.AfterFunc(time.Hour, func() {})
	if b.StopTimer(timer) {
		t.Error("foreign StopTimer succeeded")
	}
	if !a.StopTimer(timer) {
		t.Error("StopTimer on own timer failed")
	}

	if n := a.release(); n != 1 {
		t.Errorf("release() = %d, want 1", n)
	}
	if rt.commands.Len() != 0 {
		t.Error("release left the command registered")
	}
}

func TestHostEmit(t *testing.T) {
	rt := newTestRuntime(t)
	h := newHost("alpha", rt, NewManager(rt, nil))

	if err := h.Emit("chat", "hi"); !errors.Is(err, client.ErrNotConnected) {
		t.Fatalf("Emit before connect = %v, want ErrNotConnected", err)
	}
	rt.client.Connect(t.Context())
	if err := h.Emit("chat", "hi"); err != nil {
		t.Fatal(err)
	}
	want := []client.Message{{Event: "chat", Args: []any{"hi"}}}
	if diff := cmp.Diff(want, rt.client.Sent()); diff != "" {
		t.Errorf("Sent mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"combat", true},
		{"auto_equip", true},
		{"notify-2", true},
		{"", false},
		{"a", false},
		{"Combat", false},
		{"9lives", false},
		{"has space", false},
		{strings.Repeat("x", 33), false},
	}
	for _, tc := range tests {
		if err := validateName(tc.name); (err == nil) != tc.valid {
			t.Errorf("validateName(%q) = %v, valid %v", tc.name, err, tc.valid)
		}
	}
}
