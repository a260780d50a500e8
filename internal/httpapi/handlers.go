package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/authority"
	"github.com/DoyleJ11/uki-sync/pkg/types"
)

const snapshotTimeout = 2 * time.Second

type ViewSource interface {
	Snapshot(ctx context.Context) (authority.View, error)
}

type stateResponse struct {
	Clients   int                 `json:"clients"`
	Actuators []string            `json:"actuators"`
	State     types.StateSnapshot `json:"state"`
}

func State(views ViewSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
		defer cancel()

		v, err := views.Snapshot(ctx)
		if err != nil {
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stateResponse{
			Clients:   v.NumClients,
			Actuators: v.Layout.Names(),
			State:     types.FromState(v.State),
		})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
