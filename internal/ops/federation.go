// Package ops implements Runelink's domain operations behind the locality
// gate: every operation either executes against the local store (then fans
// out) or is delegated to the target host over federation, with remotely
// discovered entities mirrored into the local store on return.
package ops

import (
	"context"

	"github.com/runelink/runelink/internal/app"
	"github.com/runelink/runelink/internal/models"
	"github.com/runelink/runelink/internal/wire"
	"github.com/runelink/runelink/internal/ws"
)

// request delegates a typed request to a peer host and returns its reply.
func request(ctx context.Context, state *app.State, host string, delegated *models.UserRef, req wire.FederationRequest) (*wire.FederationReply, error) {
	return state.Federation.SendRequestToHost(ctx, host, delegated, req, ws.RequestTimeout)
}
