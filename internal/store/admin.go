package store

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/sceneview/internal/httputil"
)

// AttachAdminRoutes mounts the debug pages for the database on mux:
// tailsql for live queries, the stored configs and recent snapshots.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Scene view DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("display-configs", "Stored display configurations (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recs, err := s.ListDisplayConfigs(r.Context())
		if err != nil {
			httputil.WriteError(w, err, nil)
			return
		}
		httputil.WriteJSON(w, recs)
	}))

	debug.Handle("snapshots", "Recent render snapshots (?display=name&limit=n, or ?id=... for the PNG)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if id := q.Get("id"); id != "" {
			png, err := s.SnapshotPNG(r.Context(), id)
			if err != nil {
				httputil.WriteError(w, err, ErrNotFound)
				return
			}
			httputil.WritePNG(w, png)
			return
		}

		limit, _ := strconv.Atoi(q.Get("limit"))
		recs, err := s.RecentSnapshots(r.Context(), q.Get("display"), limit)
		if err != nil {
			httputil.WriteError(w, err, nil)
			return
		}
		httputil.WriteJSON(w, recs)
	}))
	return nil
}
