package mcpquic

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/formkeep/idgen"
	"github.com/hazyhaar/formkeep/kit"
)

// Listener accepts QUIC connections and runs one MCP session per connection
// against a shared server.
type Listener struct {
	ln     *quic.Listener
	srv    *mcp.Server
	logger *slog.Logger
	newID  idgen.Generator
}

// Listen binds addr. tlsCfg must advertise ALPN.
func Listen(addr string, tlsCfg *tls.Config, srv *mcp.Server, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := quic.ListenAddr(addr, tlsCfg, QUICConfig())
	if err != nil {
		return nil, err
	}
	logger.Info("mcpquic: listening", "addr", ln.Addr().String())
	return &Listener{ln: ln, srv: srv, logger: logger, newID: idgen.NanoID(8)}, nil
}

// Addr returns the bound UDP address.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// Serve accepts connections until ctx is done or the listener is closed.
func (l *Listener) Serve(ctx context.Context) error {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if alpn := conn.ConnectionState().TLS.NegotiatedProtocol; alpn != ALPN {
			conn.CloseWithError(ConnErrorUnsupportedALPN, "unsupported ALPN: "+alpn)
			continue
		}
		go l.serveConn(ctx, conn)
	}
}

// Close stops accepting connections.
func (l *Listener) Close() error { return l.ln.Close() }

func (l *Listener) serveConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.logger.Warn("mcpquic: accept stream failed", "remote", remote, "error", err)
		conn.CloseWithError(ConnErrorProtocolViolation, "stream accept failed")
		return
	}
	if err := ReadMagic(stream); err != nil {
		l.logger.Warn("mcpquic: rejected stream", "remote", remote, "error", err)
		stream.CancelWrite(StreamErrorBadMagic)
		stream.CancelRead(StreamErrorBadMagic)
		conn.CloseWithError(ConnErrorProtocolViolation, "invalid magic bytes")
		return
	}

	id := "quic_" + l.newID()
	ctx = kit.WithTransport(ctx, "mcp_quic")
	ss, err := l.srv.Connect(ctx, &serverTransport{stream: stream, id: id}, nil)
	if err != nil {
		l.logger.Error("mcpquic: connect failed", "session", id, "error", err)
		stream.Close()
		return
	}
	l.logger.Info("mcpquic: session started", "session", id, "remote", remote)
	if err := ss.Wait(); err != nil {
		l.logger.Debug("mcpquic: session error", "session", id, "error", err)
	}
	conn.CloseWithError(ConnErrorNone, "")
	l.logger.Info("mcpquic: session ended", "session", id, "remote", remote)
}

// serverTransport runs the SDK's JSON-RPC loop over one QUIC stream.
type serverTransport struct {
	stream *quic.Stream
	id     string
}

func (t *serverTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	iot := &mcp.IOTransport{
		Reader: io.NopCloser(t.stream),
		Writer: streamWriteCloser{t.stream},
	}
	conn, err := iot.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &sessionConn{Connection: conn, id: t.id}, nil
}

// sessionConn reports the listener's session id instead of the empty one
// io connections carry.
type sessionConn struct {
	mcp.Connection
	id string
}

func (c *sessionConn) SessionID() string { return c.id }
