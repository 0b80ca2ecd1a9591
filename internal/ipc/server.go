package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rbright/ctrloem3/internal/protocol"
)

// Handler answers one command received on an endpoint connection. A nil
// return sends nothing back.
type Handler interface {
	Handle(context.Context, protocol.Command) []protocol.Ack
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, protocol.Command) []protocol.Ack

func (f HandlerFunc) Handle(ctx context.Context, cmd protocol.Command) []protocol.Ack {
	return f(ctx, cmd)
}

// Serve accepts endpoint clients until context cancellation or listener
// close. Each client may send any number of command bytes; replies are
// written in command order.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
		mu.Lock()
		for c := range conns {
			_ = c.Close()
		}
		mu.Unlock()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept endpoint connection: %w", err)
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, c)
				mu.Unlock()
				_ = c.Close()
			}()

			buf := make([]byte, 64)
			for {
				n, err := c.Read(buf)
				for _, b := range buf[:n] {
					acks := handler.Handle(ctx, protocol.Command(b))
					if len(acks) == 0 {
						continue
					}
					out := make([]byte, len(acks))
					for i, a := range acks {
						out[i] = byte(a)
					}
					if _, werr := c.Write(out); werr != nil {
						return
					}
				}
				if err != nil {
					return
				}
			}
		}(conn)
	}
}
