package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ops"
)

// refFromPath builds a UserRef from the {host}/{name} path parameters.
func refFromPath(r *http.Request) models.UserRef {
	return models.NewUserRef(chi.URLParam(r, "name"), chi.URLParam(r, "host"))
}

// serverIDFromPath parses the {serverID} path parameter.
func serverIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "serverID"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid server ID")
	}
	return id, nil
}

// channelIDFromPath parses the {channelID} path parameter.
func channelIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "channelID"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid channel ID")
	}
	return id, nil
}

// messageIDFromPath parses the {messageID} path parameter.
func messageIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("Invalid message ID")
	}
	return id, nil
}

func (s *Instance) handleUsersGetAll(w http.ResponseWriter, r *http.Request) {
	users, err := ops.GetAllUsers(r.Context(), s.State, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Instance) handleUsersCreate(w http.ResponseWriter, r *http.Request) {
	var newUser models.NewUser
	if err := json.NewDecoder(r.Body).Decode(&newUser); err != nil {
		respondErr(w, apperr.BadRequest("Invalid request body"))
		return
	}
	session, err := s.clientSession(r, ops.UsersCreateAuth())
	if err != nil {
		respondErr(w, err)
		return
	}
	user, err := ops.CreateUser(r.Context(), s.State, session, &newUser)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Instance) handleUsersGetByRef(w http.ResponseWriter, r *http.Request) {
	user, err := ops.GetUserByRef(r.Context(), s.State, refFromPath(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Instance) handleUsersDelete(w http.ResponseWriter, r *http.Request) {
	ref := refFromPath(r)
	session, err := s.clientSession(r, ops.UsersDeleteAuth(ref))
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := ops.DeleteHomeUser(r.Context(), s.State, session, ref); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Instance) handleUsersGetAssociatedHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := ops.GetAssociatedHosts(r.Context(), s.State, refFromPath(r), targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}
