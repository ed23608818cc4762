package methodchannel

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/websocket"
	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/kolide/localnotify/ee/notify/plugin"
)

const (
	msgpackContentType = "application/msgpack"
	maxRequestBytes    = 4 << 20
	subscriberBuffer   = 16
)

// Server serves method calls over a unix socket, or a named pipe on windows.
// While at least one client is subscribed to /events, notification responses
// are pushed to subscribers instead of being held as launch details.
type Server struct {
	logger       log.Logger
	server       *http.Server
	listener     net.Listener
	shutdownChan chan<- struct{}
	authToken    string
	core         plugin.Core
	handler      *Handler
	upgrader     websocket.Upgrader

	subscribersLock sync.Mutex
	subscribers     map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

func NewServer(logger log.Logger, authToken string, socketPath string, core plugin.Core, shutdownChan chan<- struct{}) (*Server, error) {
	s := &Server{
		shutdownChan: shutdownChan,
		authToken:    authToken,
		logger:       log.With(logger, "component", "method_channel_server"),
		core:         core,
		handler:      NewHandler(core, WithHandlerLogger(logger)),
		subscribers:  make(map[*subscriber]struct{}),
	}

	authedMux := http.NewServeMux()
	authedMux.HandleFunc("/invoke", s.invokeHandler)
	authedMux.HandleFunc("/events", s.eventsHandler)
	authedMux.HandleFunc("/ping", s.pingHandler)
	authedMux.HandleFunc("/shutdown", s.shutdownHandler)

	mux := http.NewServeMux()
	mux.Handle("/", s.authMiddleware(authedMux))

	s.server = &http.Server{
		Handler: mux,
	}

	if err := removeSocket(socketPath); err != nil {
		return nil, err
	}

	l, err := listener(socketPath)
	if err != nil {
		return nil, err
	}
	s.listener = l

	s.server.RegisterOnShutdown(func() {
		s.closeSubscribers()
		if err := removeSocket(socketPath); err != nil {
			level.Error(logger).Log("msg", "removing socket on shutdown", "err", err)
		}
	})

	return s, nil
}

func (s *Server) Serve() error {
	return s.server.Serve(s.listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) pingHandler(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{\"msg\": \"pong\"}"))
}

func (s *Server) shutdownHandler(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{\"msg\": \"shutting down\"}"))
	if s.shutdownChan != nil {
		s.shutdownChan <- struct{}{}
	}
}

func (s *Server) invokeHandler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBytes))
	if err != nil {
		level.Debug(s.logger).Log("msg", "reading request body", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var call Request
	if err := decode(body, &call); err != nil {
		level.Debug(s.logger).Log("msg", "decoding request", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp := s.handler.Handle(req.Context(), call)

	out, err := encode(resp)
	if err != nil {
		level.Error(s.logger).Log("msg", "encoding response", "method", call.Method, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", msgpackContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) eventsHandler(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		level.Debug(s.logger).Log("msg", "upgrading events connection", "err", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan Event, subscriberBuffer)}
	s.addSubscriber(sub)

	go s.writeEvents(sub)

	// Reads only detect the close; clients never send anything.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	s.removeSubscriber(sub)
}

func (s *Server) writeEvents(sub *subscriber) {
	defer sub.conn.Close()
	for event := range sub.send {
		out, err := encode(event)
		if err != nil {
			level.Error(s.logger).Log("msg", "encoding event", "err", err)
			continue
		}
		if err := sub.conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			level.Debug(s.logger).Log("msg", "writing event", "err", err)
			return
		}
	}
}

func (s *Server) addSubscriber(sub *subscriber) {
	s.subscribersLock.Lock()
	defer s.subscribersLock.Unlock()

	s.subscribers[sub] = struct{}{}
	if len(s.subscribers) == 1 {
		s.core.OnNotificationResponse(s.publishResponse)
	}
}

func (s *Server) removeSubscriber(sub *subscriber) {
	s.subscribersLock.Lock()
	defer s.subscribersLock.Unlock()

	if _, ok := s.subscribers[sub]; !ok {
		return
	}
	delete(s.subscribers, sub)
	close(sub.send)
	if len(s.subscribers) == 0 {
		s.core.OnNotificationResponse(nil)
	}
}

func (s *Server) closeSubscribers() {
	s.subscribersLock.Lock()
	defer s.subscribersLock.Unlock()

	for sub := range s.subscribers {
		delete(s.subscribers, sub)
		close(sub.send)
	}
	s.core.OnNotificationResponse(nil)
}

func (s *Server) publishResponse(details activation.LaunchDetails) {
	s.Publish(Event{Method: EventNotificationResponse, Args: ResponsePayload(details)})
}

// Publish sends event to every subscriber. Subscribers that have fallen behind
// miss the event rather than blocking the caller.
func (s *Server) Publish(event Event) {
	s.subscribersLock.Lock()
	defer s.subscribersLock.Unlock()

	for sub := range s.subscribers {
		select {
		case sub.send <- event:
		default:
			level.Info(s.logger).Log("msg", "dropping event for slow subscriber", "method", event.Method)
		}
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := strings.Split(r.Header.Get("Authorization"), "Bearer ")

		if len(authHeader) != 2 {
			level.Debug(s.logger).Log("msg", "malformed authorization header")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if authHeader[1] != s.authToken {
			level.Debug(s.logger).Log("msg", "invalid authorization token")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
