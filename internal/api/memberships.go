package api

import (
	"encoding/json"
	"net/http"

	"github.com/runelink/runelink/internal/apperr"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/ops"
)

func (s *Instance) handleMembershipsGetByUser(w http.ResponseWriter, r *http.Request) {
	memberships, err := ops.GetMembershipsByUser(r.Context(), s.State, refFromPath(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memberships)
}

func (s *Instance) handleMembershipsGetMembersByServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	members, err := ops.GetMembersByServer(r.Context(), s.State, serverID, targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Instance) handleMembershipsGetByUserAndServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	member, err := ops.GetMemberByUserAndServer(r.Context(), s.State, serverID, refFromPath(r), targetHost(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Instance) handleMembershipsCreate(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	var newMembership models.NewServerMembership
	if err := json.NewDecoder(r.Body).Decode(&newMembership); err != nil {
		respondErr(w, apperr.BadRequest("Invalid request body"))
		return
	}
	if serverID != newMembership.ServerID {
		respondErr(w, apperr.BadRequest("Server ID in path does not match server ID in membership"))
		return
	}
	session, err := s.clientSession(r, ops.MembershipsCreateAuth(serverID))
	if err != nil {
		respondErr(w, err)
		return
	}
	membership, err := ops.CreateMembership(r.Context(), s.State, session, &newMembership)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, membership)
}

func (s *Instance) handleMembershipsDelete(w http.ResponseWriter, r *http.Request) {
	serverID, err := serverIDFromPath(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	ref := refFromPath(r)
	session, err := s.clientSession(r, ops.MembershipsDeleteAuth(serverID, ref))
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := ops.DeleteMembership(r.Context(), s.State, session, serverID, ref, targetHost(r)); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
