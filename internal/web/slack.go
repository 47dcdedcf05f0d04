package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	appLog "eventsbot/internal/log"
	"eventsbot/internal/store"
)

const (
	maxSlackBody = 1 << 20

	checkAPIResource = "check_api"

	msgNotAdmin         = "You must be a workspace admin in order to run `%s`"
	msgChannelAdded     = "Added channel to slack events bot 👍"
	msgChannelExists    = "Slack events bot has already been activated for this channel"
	msgChannelRemoved   = "Removed channel from slack events bot 👍"
	msgChannelNotActive = "Slack events bot is not activated for this channel"
	msgCheckingAPI      = "Checking api for events 👍"
	msgCooldown         = "This command has been run recently and is on a cooldown period. Please try again in a little while!"
	msgUnknownCommand   = "Unknown command"
)

// handleSlackEvents verifies the request signature and dispatches slash
// commands. Replies are plain text, which Slack shows to the caller only.
func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSlackBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.verifySlack(r.Header, body); err != nil {
		appLog.Warn("rejected slack request", "err", err, "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	appLog.Info("slash command", "command", cmd.Command, "channel", cmd.ChannelID, "team_domain", cmd.TeamDomain)

	switch cmd.Command {
	case "/add_channel":
		s.adminOnly(w, r, cmd, s.addChannel)
	case "/remove_channel":
		s.adminOnly(w, r, cmd, s.removeChannel)
	case "/check_api":
		s.checkAPI(w, r, cmd)
	default:
		writeText(w, msgUnknownCommand)
	}
}

func (s *Server) verifySlack(h http.Header, body []byte) error {
	secret := s.cfg.Slack.SigningSecret
	if secret == "" {
		return errors.New("signing secret not configured")
	}
	v, err := slack.NewSecretsVerifier(h, secret)
	if err != nil {
		return err
	}
	if _, err := v.Write(body); err != nil {
		return err
	}
	return v.Ensure()
}

type commandHandler func(w http.ResponseWriter, r *http.Request, cmd slack.SlashCommand)

func (s *Server) adminOnly(w http.ResponseWriter, r *http.Request, cmd slack.SlashCommand, next commandHandler) {
	ok, err := s.deps.Admins.IsAdmin(r.Context(), cmd.UserID)
	if err != nil {
		appLog.Error("admin lookup failed", err, "user", cmd.UserID)
		ok = false
	}
	if !ok {
		writeText(w, fmt.Sprintf(msgNotAdmin, cmd.Command))
		return
	}
	next(w, r, cmd)
}

func (s *Server) addChannel(w http.ResponseWriter, r *http.Request, cmd slack.SlashCommand) {
	err := s.deps.Store.AddChannel(r.Context(), cmd.ChannelID)
	switch {
	case errors.Is(err, store.ErrChannelExists):
		writeText(w, msgChannelExists)
	case err != nil:
		appLog.Error("add channel failed", err, "channel", cmd.ChannelID)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		writeText(w, msgChannelAdded)
	}
}

func (s *Server) removeChannel(w http.ResponseWriter, r *http.Request, cmd slack.SlashCommand) {
	err := s.deps.Store.RemoveChannel(r.Context(), cmd.ChannelID)
	switch {
	case errors.Is(err, store.ErrChannelNotFound):
		writeText(w, msgChannelNotActive)
	case err != nil:
		appLog.Error("remove channel failed", err, "channel", cmd.ChannelID)
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		writeText(w, msgChannelRemoved)
	}
}

// checkAPI starts a pass unless the workspace triggered one within the
// cooldown. A request without a team domain is treated as on cooldown.
func (s *Server) checkAPI(w http.ResponseWriter, r *http.Request, cmd slack.SlashCommand) {
	if cmd.TeamDomain == "" {
		appLog.Warn("check_api without team_domain")
		writeText(w, msgCooldown)
		return
	}

	ctx := r.Context()
	expiry, found, err := s.deps.Store.CooldownExpiry(ctx, cmd.TeamDomain, checkAPIResource)
	if err != nil {
		appLog.Error("cooldown lookup failed", err, "team_domain", cmd.TeamDomain)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if found && s.deps.Store.Now().Before(expiry) {
		writeText(w, msgCooldown)
		return
	}

	cooldown := time.Duration(s.cfg.CooldownMinutes) * time.Minute
	if _, err := s.deps.Store.SetCooldown(ctx, cmd.TeamDomain, checkAPIResource, cooldown); err != nil {
		appLog.Error("cooldown update failed", err, "team_domain", cmd.TeamDomain)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.deps.CheckAPI != nil {
		s.deps.CheckAPI()
	}
	writeText(w, msgCheckingAPI)
}

func writeText(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(msg))
}
