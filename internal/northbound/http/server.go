// Package http is the illustrative northbound frontend from spec.md §6: it
// translates HTTP and WebSocket requests into internal/servicebus.Request
// values and streams the responses back, but implements none of the actual
// service logic itself.
package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/flowplane/p4ctl/internal/servicebus"
)

// JSONEncoder implements servicebus.EncodeTarget using encoding/json,
// matching the "pretty-printed JSON" wording in spec.md §6.
type JSONEncoder struct{ Indent string }

func (e JSONEncoder) Encode(v any) ([]byte, error) {
	if e.Indent == "" {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", e.Indent)
}

// Server wires a servicebus.Bus to gorilla/mux routes and a
// gorilla/websocket upgrader, per spec.md §6's route table.
type Server struct {
	log      *slog.Logger
	bus      *servicebus.Bus
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New builds a Server with routes already registered. Call Handler to get
// the http.Handler to pass to an http.Server.
func New(logger *slog.Logger, bus *servicebus.Bus) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:    logger,
		bus:    bus,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.router.HandleFunc("/target/{service}/{path:.*}", s.handleTargetGet).Methods(http.MethodGet)
	s.router.HandleFunc("/target/{service}/{path:.*}", s.handleTargetPost).Methods(http.MethodPost)
	s.router.HandleFunc("/action/{service}/{action}/{path:.*}", s.handleActionGet).Methods(http.MethodGet)
	s.router.HandleFunc("/action/{service}/{action}/{path:.*}", s.handleActionPost).Methods(http.MethodPost)
	s.router.HandleFunc("/ws/{service}/{action}/{path:.*}", s.handleWS).Methods(http.MethodGet)
	return s
}

// Handler returns the http.Handler to serve.
func (s *Server) Handler() http.Handler { return s.router }

func splitPath(raw string) []string {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "/")
}

func queryParams(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (s *Server) handleTargetGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.dispatch(w, r, vars["service"], "get", splitPath(vars["path"]), queryParams(r))
}

func (s *Server) handleTargetPost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var params map[string]string
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.dispatch(w, r, vars["service"], "set", splitPath(vars["path"]), params)
}

func (s *Server) handleActionGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.dispatch(w, r, vars["service"], vars["action"], splitPath(vars["path"]), queryParams(r))
}

func (s *Server) handleActionPost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.dispatchBody(w, r, vars["service"], vars["action"], splitPath(vars["path"]), nil, body)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, service, action string, path []string, params map[string]string) {
	s.dispatchBody(w, r, service, action, path, params, nil)
}

func (s *Server) dispatchBody(w http.ResponseWriter, r *http.Request, service, action string, path []string, params map[string]string, body []byte) {
	req := servicebus.Request{
		Source: r.RemoteAddr,
		Action: action,
		Path:   path,
		Params: params,
		Body:   body,
	}

	ch, _, err := s.bus.Send(r.Context(), service, req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	var data []json.RawMessage
	for resp := range ch {
		if resp.Err != nil {
			writeError(w, statusForError(resp.Err), resp.Err)
			return
		}
		data = append(data, json.RawMessage(resp.Body))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"len":  len(data),
		"data": data,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	req := servicebus.Request{
		Source: r.RemoteAddr,
		Action: vars["action"],
		Path:   splitPath(vars["path"]),
		Params: queryParams(r),
	}

	ch, _, err := s.bus.Send(r.Context(), vars["service"], req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	enc := JSONEncoder{Indent: "  "}
	for resp := range ch {
		if resp.Err != nil {
			payload, _ := enc.Encode(map[string]string{"error": resp.Err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, payload)
			break
		}
		payload, encErr := enc.Encode(json.RawMessage(resp.Body))
		if encErr != nil {
			s.log.Warn("failed to encode response frame", "error", encErr)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.log.Debug("websocket write failed, stopping stream", "error", err)
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func statusForError(err error) int {
	switch err.(type) {
	case *servicebus.ErrServiceNotFound, *servicebus.ErrActionNotFound:
		return http.StatusNotFound
	case *servicebus.ErrRequestParse:
		return http.StatusBadRequest
	case *servicebus.ErrRequestError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
