package api

import (
	"encoding/json"
	"net/http"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ops"
)

func (s *Instance) handleChannelsGetAll(w http.ResponseWriter, r *http.Request) {
	session, err := s.clientSession(r, ops.ChannelsGetAllAuth())
	if err != nil {
		respondErr(w, err)
		return
	}
	channels, err := ops.GetAllChannels(r.Context(), s.State, session, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Instance) handleChannelsGetByServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	session, err := s.clientSession(r, ops.ChannelsGetByServerAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	channels, err := ops.GetChannelsByServer(r.Context(), s.State, session, serverID, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Instance) handleChannelsCreate(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	var newChannel models.NewChannel
	if err := json.NewDecoder(r.Body).Decode(&newChannel); err != nil {
		respondErr(w, apperr.BadRequest("Invalid request body"))
		return
	}
	session, err := s.clientSession(r, ops.ChannelsCreateAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	channel, err := ops.CreateChannel(r.Context(), s.State, session, serverID, &newChannel, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, channel)
}

func (s *Instance) handleChannelsGetByID(w http.ResponseWriter, r *http.Request) {
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
	session, err := s.clientSession(r, ops.ChannelsGetByIDAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	channel, err := ops.GetChannelByID(r.Context(), s.State, session, serverID, channelID, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (s *Instance) handleChannelsDelete(w http.ResponseWriter, r *http.Request) {
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
	session, err := s.clientSession(r, ops.ChannelsDeleteAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := ops.DeleteChannel(r.Context(), s.State, session, serverID, channelID, targetHost(r)); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
