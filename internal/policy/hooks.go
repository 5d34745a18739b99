// Package policy answers the questions the services host asks about channels and accounts:
// which project owns a channel, who may register or claim it, and what to show in INFO
// output. Every answer is a pure read of the registry.
package policy

import (
	"fmt"
	"strings"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/namespace"
	"github.com/projectns/projectns/internal/projects"
)

// Registry is the read side of projects.Registry used by the hooks.
type Registry interface {
	ChannelToProject(channel string) (projects.ProjectView, string, bool)
	ProjectsForAccount(accountID string) []projects.ProjectView
	IsContact(name, accountID string) bool
	Parser() *namespace.Parser
}

// Config holds the registration policy settings.
type Config struct {
	// RequireNamespace refuses registration of channels outside every project namespace.
	RequireNamespace bool
	// RequireNamespaceExempt is a glob of channel names exempt from RequireNamespace.
	// Empty exempts nothing.
	RequireNamespaceExempt string
	// ProjectAdvice is shown after a refusal caused by RequireNamespace.
	ProjectAdvice string
}

// Viewer identifies who is asking for information.
type Viewer struct {
	Account accounts.Ref
	Auspex  bool
}

// Decision is the answer to a registration or claim check.
type Decision struct {
	Allowed   bool
	Project   string
	Namespace string
	// Lines are shown to the requester: the refusal reason when not allowed.
	Lines []string
}

// Hooks evaluates policy against a registry.
type Hooks struct {
	reg Registry
	cfg Config
}

// New creates hooks over reg.
func New(reg Registry, cfg Config) *Hooks {
	return &Hooks{reg: reg, cfg: cfg}
}

// Config returns the active settings.
func (h *Hooks) Config() Config { return h.cfg }

// ChannelToProject resolves the project owning channel and the namespace that matched.
func (h *Hooks) ChannelToProject(channel string) (projects.ProjectView, string, bool) {
	return h.reg.ChannelToProject(channel)
}

// IsAuthorizedContact reports whether accountID is a contact of project.
func (h *Hooks) IsAuthorizedContact(project, accountID string) bool {
	return h.reg.IsContact(project, accountID)
}

// ProjectsForAccount lists the projects accountID is a contact for.
func (h *Hooks) ProjectsForAccount(accountID string) []projects.ProjectView {
	return h.reg.ProjectsForAccount(accountID)
}

// UserInfo renders the project lines of an account INFO. The account itself and auspex
// viewers see every project; anyone else only sees visible contacts.
func (h *Hooks) UserInfo(viewer Viewer, target accounts.Ref) []string {
	full := viewer.Auspex || (!viewer.Account.IsZero() && viewer.Account.ID == target.ID)

	var lines []string
	for _, p := range h.reg.ProjectsForAccount(target.ID) {
		if !full && !visibleContact(p, target.ID) {
			continue
		}
		lines = append(lines, fmt.Sprintf("Group contact for %s (%s)", p.Name, strings.Join(p.ChannelNamespaces, ", ")))
	}
	return lines
}

func visibleContact(p projects.ProjectView, accountID string) bool {
	for _, c := range p.Contacts {
		if c.Account.ID == accountID {
			return c.Visible
		}
	}
	return false
}

// namespaceOf returns the project owning channel with the namespace to report. When no
// project matches, the reported namespace is the channel's root.
func (h *Hooks) namespaceOf(channel string) (projects.ProjectView, string, bool) {
	p, ns, ok := h.reg.ChannelToProject(channel)
	if !ok {
		return projects.ProjectView{}, h.reg.Parser().Root(channel), false
	}
	return p, ns, true
}

// ChannelInfo renders the project line of a channel INFO.
func (h *Hooks) ChannelInfo(channel string) string {
	p, ns, ok := h.namespaceOf(channel)
	if !ok {
		return fmt.Sprintf("The %s namespace is not registered to any project", ns)
	}
	return fmt.Sprintf("The %s namespace is registered to the %s project", ns, p.Name)
}

func (h *Hooks) exempt(channel string) bool {
	return h.cfg.RequireNamespaceExempt != "" && namespace.Match(h.cfg.RequireNamespaceExempt, channel)
}

// CanRegister decides whether account may register channel.
func (h *Hooks) CanRegister(account accounts.Ref, channel string) Decision {
	p, ns, ok := h.namespaceOf(channel)
	d := Decision{Allowed: true, Namespace: ns}

	if !ok {
		if h.cfg.RequireNamespace && !h.exempt(channel) {
			d.Allowed = false
			d.Lines = append(d.Lines, fmt.Sprintf("The %s namespace is not registered to any project, so you cannot use it.", ns))
			if h.cfg.ProjectAdvice != "" {
				d.Lines = append(d.Lines, h.cfg.ProjectAdvice)
			}
		}
		return d
	}

	d.Project = p.Name
	if p.OpenRegistration || p.HasContact(account.ID) {
		return d
	}
	d.Allowed = false
	d.Lines = append(d.Lines, fmt.Sprintf("The %s namespace is registered to the %s project, so only authorized contacts may register new channels.", ns, p.Name))
	if p.RegInfo != "" {
		d.Lines = append(d.Lines, fmt.Sprintf("See %s for more information.", p.RegInfo))
	}
	return d
}

// DidRegister renders the notice shown after channel was registered.
func (h *Hooks) DidRegister(channel string) []string {
	p, ns, ok := h.reg.ChannelToProject(channel)
	if !ok {
		return nil
	}
	lines := []string{fmt.Sprintf("The %s namespace is managed by the %s project.", ns, p.Name)}
	if p.RegInfo != "" {
		lines = append(lines, fmt.Sprintf("See %s for more information.", p.RegInfo))
	}
	return lines
}

// Claim decides whether account may take founder access to channel on behalf of the
// project owning it.
func (h *Hooks) Claim(account accounts.Ref, channel string) Decision {
	p, ns, ok := h.reg.ChannelToProject(channel)
	if !ok {
		return Decision{Lines: []string{fmt.Sprintf("%s does not belong to any registered project.", channel)}}
	}
	d := Decision{Project: p.Name, Namespace: ns}
	if account.IsZero() || !p.HasContact(account.ID) {
		d.Lines = []string{fmt.Sprintf("You are not an authorized group contact for the %s namespace.", ns)}
		return d
	}
	d.Allowed = true
	return d
}
