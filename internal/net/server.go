package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdnet "net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"sessionhouse/internal/events"
	"sessionhouse/internal/netutil"
	"sessionhouse/internal/supervisor"
)

const defaultConnReadTimeout = 5 * time.Minute

// Server is the TCP front door onto a Supervisor: one JSON-framed
// connection per client, any number of sessions multiplexed across the
// process (spec §6). Shaped after the teacher's internal/net/server.go —
// tomb-supervised listener + worker pool — generalized from "one matching
// engine" to "one supervisor table of sessions".
type Server struct {
	address    string
	port       int
	supervisor *supervisor.Supervisor
	pool       netutil.WorkerPool
	reapEvery  time.Duration

	cancel context.CancelFunc
	log    zerolog.Logger
}

func New(address string, port int, sv *supervisor.Supervisor, poolSize int, reapEvery time.Duration, log zerolog.Logger) *Server {
	log = log.With().Str("component", "net.Server").Logger()
	return &Server{
		address:    address,
		port:       port,
		supervisor: sv,
		pool:       netutil.NewWorkerPool(poolSize, log),
		reapEvery:  reapEvery,
		log:        log,
	}
}

func (s *Server) Shutdown() {
	s.log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run blocks until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc stdnet.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		s.log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			s.log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})
	if s.reapEvery > 0 {
		t.Go(func() error { return s.reapLoop(t) })
	}

	s.log.Info().Str("address", listener.Addr().String()).Msg("server listening")
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					s.log.Error().Err(err).Msg("error accepting client")
					continue
				}
			}
			s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")
			s.pool.AddTask(conn)
		}
	}
}

func (s *Server) reapLoop(t *tomb.Tomb) error {
	ticker := time.NewTicker(s.reapEvery)
	defer ticker.Stop()
	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			if n := s.supervisor.Reap(); n > 0 {
				s.log.Info().Int("count", n).Msg("reaped terminal sessions")
			}
		}
	}
}

// conn is the per-connection actor: one reader (this goroutine), a shared
// write mutex so responses and pushed events never interleave mid-frame,
// and at most one live subscription at a time.
type conn struct {
	raw stdnet.Conn
	enc *json.Encoder
	mu  sync.Mutex
	log zerolog.Logger

	unsubscribe func()
}

func (c *conn) writeFrame(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(v)
}

func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	raw, ok := task.(stdnet.Conn)
	if !ok {
		return errors.New("improper connection type")
	}
	c := &conn{raw: raw, enc: json.NewEncoder(raw), log: s.log.With().Str("remote", raw.RemoteAddr().String()).Logger()}
	defer func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		raw.Close()
	}()

	dec := json.NewDecoder(raw)
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}
		raw.SetReadDeadline(time.Now().Add(defaultConnReadTimeout))
		var req Request
		if err := dec.Decode(&req); err != nil {
			c.log.Info().Err(err).Msg("connection closed")
			return nil
		}
		s.dispatch(c, req)
	}
}

func (s *Server) dispatch(c *conn, req Request) {
	resp := Response{ID: req.ID}
	var err error
	switch req.Op {
	case OpCreateSession:
		resp, err = s.handleCreateSession(req)
	case OpStart:
		err = s.supervisor.Start(req.SessionID)
	case OpPause:
		err = s.supervisor.Pause(req.SessionID)
	case OpResume:
		err = s.supervisor.Resume(req.SessionID)
	case OpEnd:
		err = s.supervisor.End(req.SessionID)
	case OpCancelSession:
		err = s.cancelSession(req.SessionID)
	case OpSubmitOrder:
		resp, err = s.handleSubmitOrder(req)
	case OpCancelOrder:
		resp, err = s.handleCancelOrder(req)
	case OpSubscribe:
		resp, err = s.handleSubscribe(c, req)
	case OpUnsubscribe:
		if c.unsubscribe != nil {
			c.unsubscribe()
			c.unsubscribe = nil
		}
	case OpAuctionBid:
		err = s.handleAuctionBid(req)
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}

	resp.ID = req.ID
	if err != nil {
		resp.OK = false
		resp.Error = err.Error()
	} else {
		resp.OK = true
	}
	if werr := c.writeFrame(resp); werr != nil {
		c.log.Warn().Err(werr).Msg("failed to write response")
	}
}

func (s *Server) handleCreateSession(req Request) (Response, error) {
	if req.Lesson == nil {
		return Response{}, errors.New("create_session requires a lesson")
	}
	plan, err := req.Lesson.ToPlan()
	if err != nil {
		return Response{}, err
	}
	id := s.supervisor.CreateSession(plan, req.Lesson.Roster)
	return Response{SessionID: id}, nil
}

func (s *Server) cancelSession(sessionID string) error {
	sess, err := s.supervisor.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.Cancel()
}

func (s *Server) handleSubmitOrder(req Request) (Response, error) {
	if req.Order == nil {
		return Response{}, errors.New("submit_order requires an order")
	}
	sess, err := s.supervisor.Get(req.SessionID)
	if err != nil {
		return Response{}, err
	}
	spec, err := req.Order.ToSpec()
	if err != nil {
		return Response{}, err
	}
	order, err := sess.SubmitOrder(req.UserID, spec)
	if err != nil {
		return Response{Order: order}, err
	}
	return Response{Order: order}, nil
}

func (s *Server) handleCancelOrder(req Request) (Response, error) {
	sess, err := s.supervisor.Get(req.SessionID)
	if err != nil {
		return Response{}, err
	}
	ok := sess.CancelOrder(req.UserID, req.OrderID)
	return Response{Cancelled: ok}, nil
}

func (s *Server) handleSubscribe(c *conn, req Request) (Response, error) {
	sess, err := s.supervisor.Get(req.SessionID)
	if err != nil {
		return Response{}, err
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	snap, stream, unsub := sess.Subscribe(req.UserID, req.Depth)
	c.unsubscribe = unsub
	go forwardEvents(c, stream)
	return Response{SessionID: req.SessionID, Snapshot: &snap}, nil
}

func (s *Server) handleAuctionBid(req Request) error {
	sess, err := s.supervisor.Get(req.SessionID)
	if err != nil {
		return err
	}
	return sess.PlaceAuctionBid(req.UserID)
}

// forwardEvents pushes every event off stream onto the connection until the
// bus closes it (subscriber unsubscribed or was disconnected as slow).
func forwardEvents(c *conn, stream <-chan events.Event) {
	for evt := range stream {
		wire := toWireEvent(evt)
		if err := c.writeFrame(EventFrame{Event: &wire}); err != nil {
			c.log.Warn().Err(err).Msg("failed to push event, dropping subscriber")
			return
		}
	}
}
