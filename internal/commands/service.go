// Package commands implements the operator command surface of the project registry:
// REGISTER, DROP, INFO, LIST, LISTCHANNEL, LISTCLOAK, SET, CHANNEL, CLOAK, CONTACT, MARK,
// AUDIT, CLAIM and HELP. Commands take already-split arguments and return the lines a
// services bot would send back, plus a Fault on failure. Every successful mutation is
// written to the command log through an audit.Shipper.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/audit"
	"github.com/projectns/projectns/internal/policy"
	"github.com/projectns/projectns/internal/projects"
	"github.com/projectns/projectns/internal/telemetry"
)

// DefaultServiceName is used in help output when Config.ServiceName is empty.
const DefaultServiceName = "ProjectServ"

// Config holds command surface settings.
type Config struct {
	ServiceName string
}

// Deps are the components commands operate on. Registry is required; a nil Accounts
// directory is replaced by an empty one, nil Hooks by hooks with default policy and
// a nil Shipper logs command lines with slog.
type Deps struct {
	Registry *projects.Registry
	Accounts *accounts.Directory
	Hooks    *policy.Hooks
	Shipper  audit.Shipper
}

type handler func(ctx context.Context, src Source, args []string) Result

type subcommand struct {
	name string
	help string
}

type command struct {
	name     string
	help     string
	priv     string // empty: any logged-in account
	category string
	syntax   []string
	subs     []subcommand
	run      handler
}

// CommandInfo describes a command for listings.
type CommandInfo struct {
	Name      string   `json:"name"`
	Help      string   `json:"help"`
	Privilege string   `json:"privilege,omitempty"`
	Syntax    []string `json:"syntax"`
}

// Service executes commands against one registry instance.
type Service struct {
	reg      *projects.Registry
	dir      *accounts.Directory
	hooks    *policy.Hooks
	shipper  audit.Shipper
	name     string
	commands map[string]*command
	order    []string
}

// New builds the command table.
func New(deps Deps, cfg Config) *Service {
	s := &Service{
		reg:     deps.Registry,
		dir:     deps.Accounts,
		hooks:   deps.Hooks,
		shipper: deps.Shipper,
		name:    cfg.ServiceName,
	}
	if s.name == "" {
		s.name = DefaultServiceName
	}
	if s.dir == nil {
		s.dir = accounts.NewDirectory(nil, nil)
	}
	if s.hooks == nil {
		s.hooks = policy.New(s.reg, policy.Config{})
	}

	s.commands = make(map[string]*command)
	for _, c := range []*command{
		{name: "REGISTER", help: "Adds a project registration.", priv: PrivAdmin, category: audit.CategoryAdmin,
			syntax: []string{"REGISTER <project>"}, run: s.register},
		{name: "DROP", help: "Deletes a project registration.", priv: PrivAdmin, category: audit.CategoryAdmin,
			syntax: []string{"PROJECT DROP <project>"}, run: s.drop},
		{name: "INFO", help: "Displays information about a project registration.", priv: PrivAuspex, category: audit.CategoryGet,
			syntax: []string{"PROJECT INFO <project>"}, run: s.info},
		{name: "LIST", help: "Lists project registrations.", priv: PrivAuspex, category: audit.CategoryGet,
			syntax: []string{"LIST <pattern>"}, run: s.list},
		{name: "LISTCHANNEL", help: "Lists channel namespaces.", priv: PrivAuspex, category: audit.CategoryGet,
			syntax: []string{"LISTCHANNEL <pattern>"}, run: s.listChannel},
		{name: "LISTCLOAK", help: "Lists cloak namespaces.", priv: PrivAuspex, category: audit.CategoryGet,
			syntax: []string{"LISTCLOAK <pattern>"}, run: s.listCloak},
		{name: "CHANNEL", help: "Manages project channel namespaces.", priv: PrivAdmin, category: audit.CategoryAdmin,
			syntax: []string{channelSyntax}, run: s.channel},
		{name: "CLOAK", help: "Manages project cloak namespaces.", priv: PrivAdmin, category: audit.CategoryAdmin,
			syntax: []string{cloakSyntax}, run: s.cloak},
		{name: "CONTACT", help: "Manages project contacts.", priv: PrivAdmin, category: audit.CategoryAdmin,
			syntax: []string{contactSyntax, contactSetSyntax}, run: s.contact},
		{name: "MARK", help: "Sets internal notes on projects.", priv: PrivAdmin, category: audit.CategoryAdmin,
			syntax: []string{markSyntax}, run: s.mark},
		{name: "SET", help: "Manipulates basic project settings.", priv: PrivAdmin, category: audit.CategorySet,
			syntax: []string{setSyntax}, run: s.set, subs: []subcommand{
				{"NAME", "Changes the name used to identify the project."},
				{"OPENREG", "Allow non-contacts to register channels."},
				{"REGINFO", "Public information about the project namespace."},
			}},
		{name: "AUDIT", help: "Lists projects with incomplete registrations", priv: PrivAuspex, category: audit.CategoryGet,
			syntax: []string{auditSyntax}, run: s.audit},
		{name: "CLAIM", help: "Grants you access to a channel belonging to your project.", category: audit.CategoryRegister,
			syntax: []string{"CLAIM <channel>"}, run: s.claim},
		{name: "HELP", help: "Displays contextual help information.", category: audit.CategoryGet,
			syntax: []string{"HELP [command]"}, run: s.help},
	} {
		s.commands[c.name] = c
		s.order = append(s.order, c.name)
	}
	return s
}

// Registry returns the registry commands operate on.
func (s *Service) Registry() *projects.Registry { return s.reg }

// Name returns the service name used in replies.
func (s *Service) Name() string { return s.name }

// Commands lists the command table in help order.
func (s *Service) Commands() []CommandInfo {
	out := make([]CommandInfo, 0, len(s.order))
	for _, name := range s.order {
		c := s.commands[name]
		out = append(out, CommandInfo{Name: c.name, Help: c.help, Privilege: c.priv, Syntax: c.syntax})
	}
	return out
}

// Execute runs one command. Verbs are case-insensitive.
func (s *Service) Execute(ctx context.Context, src Source, verb string, args []string) Result {
	verb = strings.ToUpper(verb)
	label := verb

	var res Result
	cmd, ok := s.commands[verb]
	switch {
	case !ok:
		label = "UNKNOWN"
		res = fail(FaultBadParams, "Invalid command. Use /msg %s help for a command listing.", s.name)
	case cmd.priv == "" && src.Account.IsZero():
		res = fail(FaultNoPrivs, "You are not logged in.")
	case cmd.priv != "" && !src.Has(cmd.priv):
		res = fail(FaultNoPrivs, "You do not have the %s privilege.", cmd.priv)
	default:
		res = cmd.run(ctx, src, args)
	}

	telemetry.CommandsTotal.WithLabelValues(label, res.Outcome()).Inc()
	return res
}

// ExecuteLine parses and runs a raw command line.
func (s *Service) ExecuteLine(ctx context.Context, src Source, line string) Result {
	verb, args := ParseLine(line)
	if verb == "" {
		return fail(FaultNeedMoreParams, "No command given. Use /msg %s help for a command listing.", s.name)
	}
	return s.Execute(ctx, src, verb, args)
}

// logCommand writes one command log line.
func (s *Service) logCommand(ctx context.Context, src Source, verb, format string, args ...any) {
	category := audit.CategoryAdmin
	if c, ok := s.commands[verb]; ok {
		category = c.category
	}
	entry := &audit.LogEntry{
		Timestamp: time.Now().UTC(),
		Category:  category,
		Verb:      verb,
		Line:      fmt.Sprintf(format, args...),
		Account:   src.Account.Name,
		AccountID: src.Account.ID,
		Service:   s.name,
		RequestID: src.RequestID,
	}
	if s.shipper == nil {
		slog.InfoContext(ctx, entry.Line, "category", category, "account", entry.Account)
		return
	}
	if err := s.shipper.Ship(ctx, entry); err != nil {
		slog.WarnContext(ctx, "failed to ship command log", "line", entry.Line, "error", err)
	}
}

// accountName returns the present name of a contact or mark setter.
func (s *Service) accountName(ref accounts.Ref) string {
	return s.dir.CurrentName(ref.ID, ref.Name)
}

func (s *Service) noSuchProject(name string) Result {
	return fail(FaultNoSuchTarget, "The project %s does not exist.", name)
}
