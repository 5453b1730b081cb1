package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/runelink/runelink/internal/hostutil"
	"github.com/runelink/runelink/internal/wire"
)

// ClientEnvelopeHandler dispatches inbound client frames.
type ClientEnvelopeHandler interface {
	HandleClientEnvelope(ctx context.Context, connID uuid.UUID, env *wire.ClientEnvelope)
}

// FederationEnvelopeHandler dispatches inbound federation frames.
type FederationEnvelopeHandler interface {
	HandleFederationEnvelope(ctx context.Context, connID uuid.UUID, env *wire.FederationEnvelope)
}

// inboundFrame is one text frame read off a socket.
type inboundFrame struct {
	data []byte
	err  error
}

// readFrames pumps text frames from the socket into a channel, dropping
// binary frames. It closes the channel when the socket closes or errors.
func readFrames(ctx context.Context, conn *websocket.Conn) <-chan inboundFrame {
	frames := make(chan inboundFrame)
	go func() {
		defer close(frames)
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				select {
				case frames <- inboundFrame{err: err}:
				case <-ctx.Done():
				}
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			select {
			case frames <- inboundFrame{data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames
}

// RunClientSocket owns one client websocket connection: it serializes
// outbound envelopes, parses inbound frames, and dispatches them to the
// handler. The connection is deregistered when the loop exits.
func RunClientSocket(
	ctx context.Context,
	conn *websocket.Conn,
	mgr *ClientManager,
	connID uuid.UUID,
	outboundCh <-chan wire.ClientEnvelope,
	done <-chan struct{},
	handler ClientEnvelopeHandler,
	logger *slog.Logger,
) {
	defer mgr.Deregister(connID)
	defer conn.Close(websocket.StatusNormalClosure, "")

	frames := readFrames(ctx, conn)
	for {
		select {
		case env := <-outboundCh:
			payload, err := json.Marshal(env)
			if err != nil {
				logger.Warn("failed to serialize client websocket message", slog.String("error", err.Error()))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				logger.Warn("client websocket send error", slog.String("error", err.Error()))
				return
			}
		case frame, ok := <-frames:
			if !ok || frame.err != nil {
				if frame.err != nil && websocket.CloseStatus(frame.err) < 0 && ctx.Err() == nil {
					logger.Warn("client websocket receive error", slog.String("error", frame.err.Error()))
				}
				return
			}
			env, err := wire.ParseClientEnvelope(frame.data)
			if err != nil {
				logger.Warn("failed to parse client websocket message", slog.String("error", err.Error()))
				continue
			}
			handler.HandleClientEnvelope(ctx, connID, env)
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunFederationSocket owns one federation websocket connection, inbound or
// outbound; both directions share this loop since they carry the same
// envelope type.
func RunFederationSocket(
	ctx context.Context,
	conn *websocket.Conn,
	mgr *FederationManager,
	connID uuid.UUID,
	outboundCh <-chan wire.FederationEnvelope,
	done <-chan struct{},
	handler FederationEnvelopeHandler,
	logger *slog.Logger,
) {
	defer mgr.Deregister(connID)
	defer conn.Close(websocket.StatusNormalClosure, "")

	frames := readFrames(ctx, conn)
	for {
		select {
		case env := <-outboundCh:
			payload, err := json.Marshal(env)
			if err != nil {
				logger.Warn("failed to serialize federation websocket message", slog.String("error", err.Error()))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				logger.Warn("federation websocket send error", slog.String("error", err.Error()))
				return
			}
		case frame, ok := <-frames:
			if !ok || frame.err != nil {
				if frame.err != nil && websocket.CloseStatus(frame.err) < 0 && ctx.Err() == nil {
					logger.Warn("federation websocket receive error", slog.String("error", frame.err.Error()))
				}
				return
			}
			env, err := wire.ParseFederationEnvelope(frame.data)
			if err != nil {
				logger.Warn("failed to parse federation websocket message", slog.String("error", err.Error()))
				continue
			}
			handler.HandleFederationEnvelope(ctx, connID, env)
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// DialFederation opens an outbound federation websocket to host,
// authenticating with the given bearer token, registers and authenticates
// the connection, and spawns its socket loop. It reports success.
func DialFederation(
	ctx context.Context,
	mgr *FederationManager,
	httpClient *http.Client,
	host string,
	bearerToken string,
	handler FederationEnvelopeHandler,
	logger *slog.Logger,
) bool {
	host = hostutil.Pad(host)
	logger.Info("opening federation websocket", slog.String("host", host))

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+bearerToken)

	conn, _, err := websocket.Dial(ctx, hostutil.FederationWsURL(host), &websocket.DialOptions{
		HTTPClient: httpClient,
		HTTPHeader: headers,
	})
	if err != nil {
		logger.Warn("failed opening federation websocket",
			slog.String("host", host), slog.String("error", err.Error()))
		return false
	}

	connID, outboundCh, done := mgr.Register()
	mgr.Authenticate(connID, host)

	go func() {
		RunFederationSocket(context.WithoutCancel(ctx), conn, mgr, connID, outboundCh, done, handler, logger)
		logger.Info("federation websocket closed", slog.String("host", host))
	}()
	return true
}
