package commands

import (
	"context"
	"strings"
)

// claim authorizes a contact to take founder access to a channel in their project's
// namespace. Granting the access itself belongs to the channel services host.
func (s *Service) claim(ctx context.Context, src Source, args []string) Result {
	if len(args) < 1 {
		return needMore("CLAIM", "CLAIM <channel>")
	}
	channel := args[0]
	if !strings.HasPrefix(channel, "#") {
		return fail(FaultBadParams, "%s is not a valid channel name.", channel)
	}

	d := s.hooks.Claim(src.Account, channel)
	if !d.Allowed {
		code := FaultNoPrivs
		if d.Project == "" {
			code = FaultNoSuchTarget
		}
		r := &reply{}
		res := r.fail(code, "%s", d.Lines[0])
		res.Lines = append(res.Lines, d.Lines[1:]...)
		return res
	}

	s.logCommand(ctx, src, "CLAIM", "CLAIM: %s for %s", channel, d.Project)
	r := &reply{}
	r.say("Full access to %s may be granted to %s on behalf of the %s project.", channel, src.Account.Name, d.Project)
	return r.ok()
}
