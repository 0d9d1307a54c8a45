package serve

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"modelhub/internal/cache"
)

type fakeHandle struct {
	valid       bool
	sess        Session
	err         error
	serveCalled bool
	gotTrack    string
}

func (h *fakeHandle) IsValid(context.Context) bool { return h.valid }

func (h *fakeHandle) Serve(_ context.Context, trackUseCase string) (Session, error) {
	h.serveCalled = true
	h.gotTrack = trackUseCase
	return h.sess, h.err
}

type fakeLauncher struct {
	handle   *fakeHandle
	lastSpec HandleSpec
	calls    int
}

func (l *fakeLauncher) Handle(spec HandleSpec) Handle {
	l.calls++
	l.lastSpec = spec
	return l.handle
}

type fakeCache struct {
	state      cache.State
	calls      int
	gotEnabled bool
	gotFrac    *float64
}

func (c *fakeCache) Configure(_ context.Context, enabled bool, frac *float64) cache.State {
	c.calls++
	c.gotEnabled = enabled
	c.gotFrac = frac
	return c.state
}

type fakeRegistrar struct {
	entries map[string]string
	calls   int
}

func (r *fakeRegistrar) Register(modelID, dir string) {
	if r.entries == nil {
		r.entries = make(map[string]string)
	}
	r.entries[modelID] = dir
	r.calls++
}

func okSession(modelID string) Session {
	return Session{
		ModelID: modelID,
		URL:     "http://127.0.0.1:9001",
		SRV:     "http:127.0.0.1:9001/pid=4242",
		Dir:     "/sessions/" + modelID + "_1a2b3c4d",
		APIs:    []string{"run"},
	}
}

func newTestOrchestrator(t *testing.T, l *fakeLauncher, c *fakeCache, r *fakeRegistrar) *Orchestrator {
	t.Helper()
	o, err := New(Config{Launcher: l, Cache: c, Registrar: r})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Cache: &fakeCache{}, Registrar: &fakeRegistrar{}}); err == nil {
		t.Fatalf("expected error without launcher")
	}
	if _, err := New(Config{Launcher: &fakeLauncher{}, Registrar: &fakeRegistrar{}}); err == nil {
		t.Fatalf("expected error without cache configurator")
	}
	if _, err := New(Config{Launcher: &fakeLauncher{}, Cache: &fakeCache{}}); err == nil {
		t.Fatalf("expected error without registrar")
	}
}

func TestMemoryFractionValidation(t *testing.T) {
	cases := []struct {
		frac *float64
		ok   bool
	}{
		{nil, true},
		{f(0.2), true},
		{f(0.7), true},
		{f(0.5), true},
		{f(0.19), false},
		{f(0.71), false},
		{f(0.0), false},
		{f(1.0), false},
		{f(-0.3), false},
	}
	for _, tc := range cases {
		l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: okSession("eos4e40")}}
		c := &fakeCache{state: cache.State{Amenable: true}}
		r := &fakeRegistrar{}
		o := newTestOrchestrator(t, l, c, r)

		req := NewRequest("eos4e40")
		req.MaxMemoryFrac = tc.frac
		_, err := o.Serve(context.Background(), req)
		if tc.ok && err != nil {
			t.Fatalf("frac=%v: unexpected error %v", tc.frac, err)
		}
		if !tc.ok {
			if !IsConfiguration(err) {
				t.Fatalf("frac=%v: want configuration error, got %v", *tc.frac, err)
			}
			// validation fires before any side effect
			if c.calls != 0 || l.calls != 0 || r.calls != 0 {
				t.Fatalf("frac=%v: side effects before validation: cache=%d launcher=%d registrar=%d",
					*tc.frac, c.calls, l.calls, r.calls)
			}
		}
	}
}

func TestEmptyModelRejected(t *testing.T) {
	l := &fakeLauncher{handle: &fakeHandle{valid: true}}
	o := newTestOrchestrator(t, l, &fakeCache{}, &fakeRegistrar{})
	_, err := o.Serve(context.Background(), Request{})
	if !IsConfiguration(err) {
		t.Fatalf("want configuration error, got %v", err)
	}
}

func TestInvalidHandleFailsBeforeStart(t *testing.T) {
	h := &fakeHandle{valid: false}
	l := &fakeLauncher{handle: h}
	c := &fakeCache{}
	r := &fakeRegistrar{}
	o := newTestOrchestrator(t, l, c, r)

	_, err := o.Serve(context.Background(), NewRequest("eos9999"))
	if !IsModelNotFound(err) {
		t.Fatalf("want model-not-found, got %v", err)
	}
	if !strings.Contains(err.Error(), "eos9999") {
		t.Fatalf("error must name the requested identifier: %v", err)
	}
	if h.serveCalled {
		t.Fatalf("no server may be started for an invalid handle")
	}
	if r.calls != 0 {
		t.Fatalf("no session may be registered for an invalid handle")
	}
	// the cache backend is configured before the validity check
	if c.calls != 1 {
		t.Fatalf("cache configuration must precede the validity check, calls=%d", c.calls)
	}
}

func TestMissingURLIsServeFailed(t *testing.T) {
	sess := okSession("eos4e40")
	sess.URL = ""
	l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: sess}}
	r := &fakeRegistrar{}
	o := newTestOrchestrator(t, l, &fakeCache{}, r)

	_, err := o.Serve(context.Background(), NewRequest("eos4e40"))
	if !IsServeFailed(err) {
		t.Fatalf("want serve-failed, got %v", err)
	}
	if err.Error() != "no URL found; service unsuccessful" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if r.calls != 0 {
		t.Fatalf("registration must not happen without a URL")
	}
}

func TestServeErrorIsTerminal(t *testing.T) {
	boom := errors.New("spawn: exit status 1")
	l := &fakeLauncher{handle: &fakeHandle{valid: true, err: boom}}
	r := &fakeRegistrar{}
	o := newTestOrchestrator(t, l, &fakeCache{}, r)

	_, err := o.Serve(context.Background(), NewRequest("eos4e40"))
	if !errors.Is(err, boom) {
		t.Fatalf("collaborator failure must surface unchanged, got %v", err)
	}
	if r.calls != 0 {
		t.Fatalf("no registration after a failed start")
	}
}

func TestRegistrationUsesCanonicalID(t *testing.T) {
	// the caller passed a slug; the session reports the canonical ID
	sess := okSession("eos4e40")
	l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: sess}}
	r := &fakeRegistrar{}
	o := newTestOrchestrator(t, l, &fakeCache{}, r)

	out, err := o.Serve(context.Background(), NewRequest("retrosynthesis"))
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out.ModelID != "eos4e40" {
		t.Fatalf("result must carry the canonical id, got %q", out.ModelID)
	}
	if dir, ok := r.entries["eos4e40"]; !ok || dir != sess.Dir {
		t.Fatalf("registered under wrong key: %+v", r.entries)
	}
}

func TestReRegistrationLastWins(t *testing.T) {
	r := &fakeRegistrar{}
	for _, dir := range []string{"/s/first", "/s/second"} {
		sess := okSession("eos4e40")
		sess.Dir = dir
		l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: sess}}
		o := newTestOrchestrator(t, l, &fakeCache{}, r)
		if _, err := o.Serve(context.Background(), NewRequest("eos4e40")); err != nil {
			t.Fatalf("serve: %v", err)
		}
	}
	if r.calls != 2 {
		t.Fatalf("registration must not be skipped on re-serve, calls=%d", r.calls)
	}
	if r.entries["eos4e40"] != "/s/second" {
		t.Fatalf("most recent directory must win, got %q", r.entries["eos4e40"])
	}
}

func TestTrackingPassThrough(t *testing.T) {
	// tracking disabled: no use case is sent, label is Disabled
	h := &fakeHandle{valid: true, sess: okSession("eos4e40")}
	o := newTestOrchestrator(t, &fakeLauncher{handle: h}, &fakeCache{}, &fakeRegistrar{})
	req := NewRequest("eos4e40")
	req.TrackingUseCase = "hosted"
	out, err := o.Serve(context.Background(), req)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if h.gotTrack != "" {
		t.Fatalf("use case sent although tracking is off: %q", h.gotTrack)
	}
	if out.Tracking != "Disabled" {
		t.Fatalf("want Tracking=Disabled, got %q", out.Tracking)
	}

	// tracking enabled: the use case value passes through unmodified
	h2 := &fakeHandle{valid: true, sess: okSession("eos4e40")}
	o2 := newTestOrchestrator(t, &fakeLauncher{handle: h2}, &fakeCache{}, &fakeRegistrar{})
	req2 := NewRequest("eos4e40")
	req2.Track = true
	req2.TrackingUseCase = "self-service"
	out2, err := o2.Serve(context.Background(), req2)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if h2.gotTrack != "self-service" {
		t.Fatalf("use case not passed through: %q", h2.gotTrack)
	}
	if out2.Tracking != "Enabled" {
		t.Fatalf("want Tracking=Enabled, got %q", out2.Tracking)
	}
}

func TestConfiguratorSeesResolvedFlag(t *testing.T) {
	// baseline off, but local-cache-only forces the flag on before the
	// configurator runs
	c := &fakeCache{}
	l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: okSession("eos4e40")}}
	o := newTestOrchestrator(t, l, c, &fakeRegistrar{})

	req := NewRequest("eos4e40")
	req.EnableLocalCache = false
	req.LocalCacheOnly = true
	req.MaxMemoryFrac = f(0.4)
	if _, err := o.Serve(context.Background(), req); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !c.gotEnabled {
		t.Fatalf("configurator must see the resolved flag, not the baseline")
	}
	if c.gotFrac == nil || *c.gotFrac != 0.4 {
		t.Fatalf("memory fraction not passed through: %v", c.gotFrac)
	}
	if l.lastSpec.Source != SourceLocalOnly || !l.lastSpec.LocalCache {
		t.Fatalf("handle spec not built from the resolution: %+v", l.lastSpec)
	}
}

func TestLocalCacheLabelFollowsAmenability(t *testing.T) {
	// logically enabled but the backend is unreachable: both facts surface
	c := &fakeCache{state: cache.State{Amenable: false, Detail: "redis unreachable"}}
	l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: okSession("eos4e40")}}
	o := newTestOrchestrator(t, l, c, &fakeRegistrar{})

	req := NewRequest("eos4e40")
	req.LocalCacheOnly = true
	out, err := o.Serve(context.Background(), req)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out.CacheFetchingMode != "Local only" {
		t.Fatalf("want Local only, got %q", out.CacheFetchingMode)
	}
	if out.LocalCache != "Disabled" {
		t.Fatalf("amenability must drive the Local Cache label, got %q", out.LocalCache)
	}

	c2 := &fakeCache{state: cache.State{Configured: true, Amenable: true}}
	l2 := &fakeLauncher{handle: &fakeHandle{valid: true, sess: okSession("eos4e40")}}
	o2 := newTestOrchestrator(t, l2, c2, &fakeRegistrar{})
	out2, err := o2.Serve(context.Background(), NewRequest("eos4e40"))
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out2.LocalCache != "Enabled" {
		t.Fatalf("want Enabled, got %q", out2.LocalCache)
	}
}

func TestAdditionalAPIs(t *testing.T) {
	cases := []struct {
		apis []string
		want []string // nil means absent
	}{
		{[]string{"run"}, nil},
		{[]string{"run", "info"}, []string{"info"}},
		{[]string{"fit", "run", "info"}, []string{"fit", "info"}},
		{[]string{"run", "run"}, []string{}},
		{[]string{}, []string{}},
	}
	for _, tc := range cases {
		sess := okSession("eos4e40")
		sess.APIs = tc.apis
		l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: sess}}
		o := newTestOrchestrator(t, l, &fakeCache{}, &fakeRegistrar{})
		out, err := o.Serve(context.Background(), NewRequest("eos4e40"))
		if err != nil {
			t.Fatalf("apis=%v: serve: %v", tc.apis, err)
		}
		if tc.want == nil {
			if out.AdditionalAPIs != nil {
				t.Fatalf("apis=%v: want absent, got %v", tc.apis, out.AdditionalAPIs)
			}
			continue
		}
		if out.AdditionalAPIs == nil {
			t.Fatalf("apis=%v: want %v, got absent", tc.apis, tc.want)
		}
		if len(out.AdditionalAPIs) != len(tc.want) {
			t.Fatalf("apis=%v: want %v, got %v", tc.apis, tc.want, out.AdditionalAPIs)
		}
		for i := range tc.want {
			if out.AdditionalAPIs[i] != tc.want[i] {
				t.Fatalf("apis=%v: want %v, got %v", tc.apis, tc.want, out.AdditionalAPIs)
			}
		}
	}
}

// Absent and empty must stay distinguishable after JSON encoding.
func TestAdditionalAPIsJSONShape(t *testing.T) {
	sess := okSession("eos4e40")
	l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: sess}}
	o := newTestOrchestrator(t, l, &fakeCache{}, &fakeRegistrar{})
	out, err := o.Serve(context.Background(), NewRequest("eos4e40"))
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"Additional APIs":null`) {
		t.Fatalf("run-only model must serialize Additional APIs as null: %s", b)
	}

	sess2 := okSession("eos4e40")
	sess2.APIs = []string{"run", "run"}
	l2 := &fakeLauncher{handle: &fakeHandle{valid: true, sess: sess2}}
	o2 := newTestOrchestrator(t, l2, &fakeCache{}, &fakeRegistrar{})
	out2, err := o2.Serve(context.Background(), NewRequest("eos4e40"))
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	b2, err := json.Marshal(out2)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b2), `"Additional APIs":[]`) {
		t.Fatalf("want empty list, got %s", b2)
	}
}

func TestResultShape(t *testing.T) {
	sess := Session{
		ModelID: "eos4e40",
		URL:     "http://127.0.0.1:9001",
		SRV:     "http:127.0.0.1:9001/pid=4242",
		Dir:     "/sessions/eos4e40_1a2b3c4d",
		APIs:    []string{"run", "info"},
	}
	l := &fakeLauncher{handle: &fakeHandle{valid: true, sess: sess}}
	c := &fakeCache{state: cache.State{Configured: true, Amenable: true}}
	o := newTestOrchestrator(t, l, c, &fakeRegistrar{})

	req := NewRequest("eos4e40")
	req.Track = true
	req.CacheOnly = true
	out, err := o.Serve(context.Background(), req)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out.ModelID != "eos4e40" || out.URL != sess.URL || out.SRV != sess.SRV || out.Session != sess.Dir {
		t.Fatalf("session facts mangled: %+v", out)
	}
	if out.CacheFetchingMode != "Hybrid (local & cloud)" {
		t.Fatalf("want hybrid label, got %q", out.CacheFetchingMode)
	}
	if out.LocalCache != "Enabled" || out.Tracking != "Enabled" {
		t.Fatalf("labels wrong: %+v", out)
	}
	if out.DefaultAPI != "run" {
		t.Fatalf("default api must be run, got %q", out.DefaultAPI)
	}
	if len(out.AdditionalAPIs) != 1 || out.AdditionalAPIs[0] != "info" {
		t.Fatalf("additional apis wrong: %v", out.AdditionalAPIs)
	}
}

func f(v float64) *float64 { return &v }
