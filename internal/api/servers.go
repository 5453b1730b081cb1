package api

import (
	"encoding/json"
	"net/http"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ops"
)

func (s *Instance) handleServersGetAll(w http.ResponseWriter, r *http.Request) {
	servers, err := ops.GetAllServers(r.Context(), s.State, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Instance) handleServersCreate(w http.ResponseWriter, r *http.Request) {
	var newServer models.NewServer
	if err := json.NewDecoder(r.Body).Decode(&newServer); err != nil {
		respondErr(w, apperr.BadRequest("Invalid request body"))
		return
	}
	session, err := s.clientSession(r, ops.ServersCreateAuth())
	if err != nil {
		respondErr(w, err)
		return
	}
	server, err := ops.CreateServer(r.Context(), s.State, session, &newServer, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, server)
}

func (s *Instance) handleServersGetByID(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	server, err := ops.GetServerByID(r.Context(), s.State, serverID, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (s *Instance) handleServersGetWithChannels(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	session, err := s.clientSession(r, ops.ServersGetWithChannelsAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	full, err := ops.GetServerWithChannels(r.Context(), s.State, session, serverID, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, full)
}

func (s *Instance) handleServersDelete(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	session, err := s.clientSession(r, ops.ServersDeleteAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := ops.DeleteServer(r.Context(), s.State, session, serverID, targetHost(r)); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
