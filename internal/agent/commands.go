package agent

import (
	"context"
	"fmt"
	"strings"

	"veilbot/internal/onboard"
)

// ChatCommand is a parsed slash command from the message text.
type ChatCommand struct {
	Name string   // command name without "/"
	Args []string // arguments after the command
	Raw  string   // original full text
}

// ParseCommand checks if a message starts with "/" and parses it.
// Returns nil if the message is not a command.
func ParseCommand(text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil
	}

	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return &ChatCommand{Name: name, Args: args, Raw: text}
}

// handleCommand executes a slash command. Every recognized and unrecognized
// command yields text; commands never fall through to the intent handlers.
func (r *Responder) handleCommand(ctx context.Context, cmd *ChatCommand, req Request) string {
	switch cmd.Name {
	case "help":
		return helpText()

	case "setup":
		if len(cmd.Args) == 1 && strings.EqualFold(cmd.Args[0], "complete") {
			out := onboard.CompleteSetup(req.Profile)
			if out.Changed {
				if err := r.profiles.Upsert(ctx, *req.Profile); err != nil {
					r.logger.Warn("cannot persist setup completion", "user", req.Profile.UserID, "err", err)
				}
				return "🎉 Setup complete! You can now create payment links, check /balance, and share /links."
			}
			return out.Reply
		}
		return r.setupInstructions(req)

	case "fkey":
		if len(cmd.Args) != 1 {
			return "Usage: /fkey <username> — for example: /fkey tantodefi"
		}
		if reply := r.handleIdentityClaim(ctx, cmd.Args[0], req); reply != "" {
			return reply
		}
		return fmt.Sprintf("`%s` doesn't look like a valid fkey username (3-20 letters or digits).", cmd.Args[0])

	case "scan":
		if len(cmd.Args) != 1 {
			return "Usage: /scan <address>"
		}
		return r.scanAddress(ctx, cmd.Args[0])

	case "balance":
		if allowed, nudge := onboard.Gate(req.Profile, onboard.FeatureBalance); !allowed {
			return nudge
		}
		bal, err := r.balances.Balance(ctx, req.Profile.StealthAddress)
		if err != nil {
			r.logger.Warn("balance fetch failed", "user", req.Profile.UserID, "err", err)
			return "I couldn't reach the balance service. Try again shortly."
		}
		return fmt.Sprintf("Your stealth address balance: %s", bal)

	case "links":
		if allowed, nudge := onboard.Gate(req.Profile, onboard.FeatureLinks); !allowed {
			return nudge
		}
		return fmt.Sprintf("Your public payment page: https://app.fkey.id/%s\n"+
			"Anyone can pay you there; funds arrive at your stealth address.", req.Profile.FkeyID)

	case "create":
		if allowed, nudge := onboard.Gate(req.Profile, onboard.FeatureContentCreation); !allowed {
			return nudge
		}
		// Slice past the command token itself; the raw text may spell the
		// command in any case.
		return r.createContent(ctx, strings.TrimSpace(cmd.Raw[len(cmd.Name)+1:]), req)

	default:
		return fmt.Sprintf("Unknown command `%s` — try /help.", "/"+cmd.Name)
	}
}

// scanAddress is available pre-complete: checking an arbitrary address is
// not privacy-sensitive.
func (r *Responder) scanAddress(ctx context.Context, address string) string {
	bal, err := r.balances.Balance(ctx, address)
	if err != nil {
		r.logger.Warn("address scan failed", "err", err)
		return "I couldn't scan that address right now. Try again shortly."
	}
	return fmt.Sprintf("Address %s holds %s.", address, bal)
}

// createContent handles `/create <title>|<description>|<price>|<currency>`:
// a paid content link backed by a payment link to the user's stealth address.
func (r *Responder) createContent(ctx context.Context, spec string, req Request) string {
	parts := strings.Split(spec, "|")
	if len(parts) != 4 {
		return "Usage: /create <title>|<description>|<price>|<currency>"
	}
	title := strings.TrimSpace(parts[0])
	desc := strings.TrimSpace(parts[1])
	price := strings.TrimSpace(parts[2])
	currency := strings.TrimSpace(parts[3])
	if title == "" || price == "" {
		return "Title and price are required: /create <title>|<description>|<price>|<currency>"
	}

	url, err := r.payments.CreateLink(ctx, price, req.Profile.StealthAddress, map[string]string{
		"fkey":        req.Profile.FkeyID,
		"title":       title,
		"description": desc,
		"currency":    currency,
	})
	if err != nil {
		r.logger.Warn("content link creation failed", "user", req.Profile.UserID, "err", err)
		return "Couldn't create the content link right now. Try again in a minute."
	}
	return fmt.Sprintf("Created \"%s\" — share this link to sell it:\n%s", title, url)
}

func helpText() string {
	return `Here's what I can do:

/help — this message
/fkey <username> — verify your fkey identity
/setup complete — finish onboarding (after mini-app registration)
/scan <address> — check any address balance
/balance — your stealth address balance
/links — your public payment page
/create <title>|<description>|<price>|<currency> — sell content

Or just talk to me: "create payment link for $10", "what's a stealth address?"`
}
