package api

import (
	"encoding/json"
	"net/http"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/auth"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ops"
)

func (s *Instance) handleMessagesGetAll(w http.ResponseWriter, r *http.Request) {
	session, err := s.clientSession(r, ops.MessagesGetAllAuth())
	if err != nil {
		respondErr(w, err)
		return
	}
	messages, err := ops.GetAllMessages(r.Context(), s.State, session, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Instance) handleMessagesGetByServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	session, err := s.clientSession(r, ops.MessagesGetByServerAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	messages, err := ops.GetMessagesByServer(r.Context(), s.State, session, serverID, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Instance) handleMessagesGetByChannel(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	channelID, err := channelIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	session, err := s.clientSession(r, ops.MessagesGetByChannelAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	messages, err := ops.GetMessagesByChannel(r.Context(), s.State, session, serverID, channelID, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Instance) handleMessagesCreate(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	channelID, err := channelIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	var newMessage models.NewMessage
	if err := json.NewDecoder(r.Body).Decode(&newMessage); err != nil {
		respondErr(w, apperr.BadRequest("Invalid request body"))
		return
	}
	session, err := s.clientSession(r, ops.MessagesCreateAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	message, err := ops.CreateMessage(r.Context(), s.State, session, serverID, channelID, &newMessage, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (s *Instance) handleMessagesGetByID(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	channelID, err := channelIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	messageID, err := messageIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	session, err := s.clientSession(r, ops.MessagesGetByIDAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	message, err := ops.GetMessageByID(r.Context(), s.State, session, serverID, channelID, messageID, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (s *Instance) handleMessagesDelete(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	channelID, err := channelIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	messageID, err := messageIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}

	// The delete rule depends on the message author, so the requirement is
	// built from the store first. For remote targets the author lives on
	// the home host, which enforces the real rule under delegation.
	var requirement *auth.Requirement
	if target := targetHost(r); s.State.Config.IsRemoteHost(target) {
		requirement = ops.MessagesDeleteRemoteAuth()
	} else {
		req, err := ops.MessagesDeleteAuth(r.Context(), s.State, serverID, messageID)
		if err != nil {
			respondErr(w, err)
			return
		}
		requirement = req
	}

	session, err := s.clientSession(r, requirement)
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := ops.DeleteMessage(r.Context(), s.State, session, serverID, channelID, messageID, targetHost(r)); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
