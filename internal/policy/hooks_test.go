package policy

import (
	"reflect"
	"testing"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/projects"
)

var (
	alice = accounts.Ref{ID: "A1", Name: "alice"}
	bob   = accounts.Ref{ID: "B2", Name: "bob"}
	carol = accounts.Ref{ID: "C3", Name: "carol"}
)

func newHooks(t *testing.T, cfg Config) *Hooks {
	t.Helper()
	reg := projects.New(projects.Options{})
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	_, err := reg.Create("foo", "staff")
	must(err)
	_, err = reg.Create("bar", "staff")
	must(err)
	must(reg.AddChannelNamespace("foo", "#foo"))
	must(reg.AddChannelNamespace("foo", "#foobar"))
	must(reg.AddChannelNamespace("bar", "#bar"))
	must(reg.SetRegInfo("foo", "https://example.org/foo"))
	must(reg.SetOpenRegistration("bar", true))
	_, err = reg.AddContact("foo", alice, false, false)
	must(err)
	_, err = reg.AddContact("bar", alice, true, false)
	must(err)
	return New(reg, cfg)
}

func TestUserInfo(t *testing.T) {
	h := newHooks(t, Config{})
	// in the order alice became a contact
	all := []string{
		"Group contact for foo (#foo, #foobar)",
		"Group contact for bar (#bar)",
	}

	tests := []struct {
		name   string
		viewer Viewer
		want   []string
	}{
		{"self", Viewer{Account: alice}, all},
		{"auspex", Viewer{Account: bob, Auspex: true}, all},
		{"other sees visible only", Viewer{Account: bob}, []string{"Group contact for bar (#bar)"}},
		{"anonymous", Viewer{}, []string{"Group contact for bar (#bar)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.UserInfo(tt.viewer, alice)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("UserInfo() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := h.UserInfo(Viewer{Account: bob}, bob); got != nil {
		t.Errorf("UserInfo for non-contact = %q, want nil", got)
	}
}

func TestChannelInfo(t *testing.T) {
	h := newHooks(t, Config{})
	tests := []struct {
		channel string
		want    string
	}{
		{"#foo", "The #foo namespace is registered to the foo project"},
		{"#FOO-dev", "The #foo namespace is registered to the foo project"},
		{"#foobar-x", "The #foobar namespace is registered to the foo project"},
		{"#baz-dev-x", "The #baz namespace is not registered to any project"},
		{"##foo", "The ##foo namespace is not registered to any project"},
	}
	for _, tt := range tests {
		if got := h.ChannelInfo(tt.channel); got != tt.want {
			t.Errorf("ChannelInfo(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

func TestCanRegister(t *testing.T) {
	strict := Config{
		RequireNamespace:       true,
		RequireNamespaceExempt: "##*",
		ProjectAdvice:          "Register your project first.",
	}

	tests := []struct {
		name    string
		cfg     Config
		account accounts.Ref
		channel string
		allowed bool
		lines   []string
	}{
		{"unowned, no requirement", Config{}, bob, "#baz", true, nil},
		{"unowned, required", strict, bob, "#baz-dev", false, []string{
			"The #baz namespace is not registered to any project, so you cannot use it.",
			"Register your project first.",
		}},
		{"unowned, exempt", strict, bob, "##offtopic", true, nil},
		{"required without exempt mask", Config{RequireNamespace: true}, bob, "##offtopic", false, []string{
			"The ##offtopic namespace is not registered to any project, so you cannot use it.",
		}},
		{"closed project, contact", strict, alice, "#foo-dev", true, nil},
		{"closed project, outsider", strict, bob, "#foo-dev", false, []string{
			"The #foo namespace is registered to the foo project, so only authorized contacts may register new channels.",
			"See https://example.org/foo for more information.",
		}},
		{"open project, outsider", strict, carol, "#bar-social", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newHooks(t, tt.cfg).CanRegister(tt.account, tt.channel)
			if d.Allowed != tt.allowed {
				t.Errorf("Allowed = %v, want %v", d.Allowed, tt.allowed)
			}
			if !reflect.DeepEqual(d.Lines, tt.lines) {
				t.Errorf("Lines = %q, want %q", d.Lines, tt.lines)
			}
		})
	}
}

func TestDidRegister(t *testing.T) {
	h := newHooks(t, Config{})
	want := []string{
		"The #foo namespace is managed by the foo project.",
		"See https://example.org/foo for more information.",
	}
	if got := h.DidRegister("#foo-dev"); !reflect.DeepEqual(got, want) {
		t.Errorf("DidRegister = %q, want %q", got, want)
	}
	if got := h.DidRegister("#bar"); len(got) != 1 {
		t.Errorf("DidRegister(#bar) = %q, want one line", got)
	}
	if got := h.DidRegister("#nobody"); got != nil {
		t.Errorf("DidRegister(#nobody) = %q, want nil", got)
	}
}

func TestClaim(t *testing.T) {
	h := newHooks(t, Config{})

	d := h.Claim(alice, "#foo-dev")
	if !d.Allowed || d.Project != "foo" || d.Namespace != "#foo" {
		t.Errorf("Claim(alice) = %+v", d)
	}

	d = h.Claim(bob, "#foo-dev")
	if d.Allowed {
		t.Error("bob must not be allowed to claim")
	}
	if want := "You are not an authorized group contact for the #foo namespace."; len(d.Lines) != 1 || d.Lines[0] != want {
		t.Errorf("Lines = %q", d.Lines)
	}

	d = h.Claim(alice, "#nowhere")
	if d.Allowed {
		t.Error("unowned channel must not be claimable")
	}
	if want := "#nowhere does not belong to any registered project."; len(d.Lines) != 1 || d.Lines[0] != want {
		t.Errorf("Lines = %q", d.Lines)
	}
}

func TestIsAuthorizedContact(t *testing.T) {
	h := newHooks(t, Config{})
	if !h.IsAuthorizedContact("FOO", alice.ID) {
		t.Error("alice is a contact of foo")
	}
	if h.IsAuthorizedContact("foo", bob.ID) {
		t.Error("bob is not a contact of foo")
	}
	if got := len(h.ProjectsForAccount(alice.ID)); got != 2 {
		t.Errorf("ProjectsForAccount = %d, want 2", got)
	}
}
