// serve.go is the HTTP/WebSocket front end over the shared manager,
// grounded on the teacher's own cmd/server.go + cmd/root.go
// startHTTPServer shape (a mux-based JSON API sitting in front of the
// same download core), retargeted from net/http's bare ServeMux onto
// go-chi/chi for routing and gorilla/websocket for the live event
// stream — both already present elsewhere in this corpus.
package cmd

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/fastdown/fastdown/internal/config"
	"github.com/fastdown/fastdown/internal/engine/events"
	"github.com/fastdown/fastdown/internal/logging"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an HTTP/WebSocket front end over the download manager",
	Run: func(cmd *cobra.Command, args []string) {
		m := sharedManager()
		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/tasks", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, m.Table())
		})

		r.Post("/tasks", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				URL string `json:"url"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
				http.Error(w, "missing url", http.StatusBadRequest)
				return
			}
			t := m.Add(body.URL, config.Config{})
			writeJSON(w, map[string]string{"gid": t.Gid.String()})
		})

		r.Delete("/tasks/{gid}", func(w http.ResponseWriter, r *http.Request) {
			gid, err := parseGid(chi.URLParam(r, "gid"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := m.Remove(gid); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/tasks/{gid}/stop", func(w http.ResponseWriter, r *http.Request) {
			gid, err := parseGid(chi.URLParam(r, "gid"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := m.Stop(gid); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/tasks/{gid}/resume", func(w http.ResponseWriter, r *http.Request) {
			gid, err := parseGid(chi.URLParam(r, "gid"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := m.Resume(gid); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Put("/parallelism", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				N int `json:"n"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.N < 1 {
				http.Error(w, "invalid n", http.StatusBadRequest)
				return
			}
			m.SetParallelism(body.N)
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/tasks/{gid}/events", func(w http.ResponseWriter, r *http.Request) {
			gid, err := parseGid(chi.URLParam(r, "gid"))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			t := m.Get(gid)
			if t == nil {
				http.Error(w, "no such task", http.StatusNotFound)
				return
			}
			serveEventSocket(w, r, t.Events())
		})

		addr := ":" + servePort
		logging.L().Infof("serving on %s", addr)
		log.Fatal(http.ListenAndServe(addr, r))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "8383", "port to listen on")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveEventSocket upgrades the request to a WebSocket and forwards every
// event published on stream as JSON until the stream closes or the client
// disconnects.
func serveEventSocket(w http.ResponseWriter, r *http.Request, stream *events.Stream) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.L().Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		ev, ok := stream.Next()
		if !ok {
			return
		}
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
