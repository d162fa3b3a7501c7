package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/schema"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
)

func getSessionsHandler(bridge alphabridge.API) http.HandlerFunc {
	decoder := schema.NewDecoder()
	return func(w http.ResponseWriter, r *http.Request) {
		reqDTO := &struct {
			Username string `schema:"username"`
		}{}

		if err := decoder.Decode(reqDTO, r.URL.Query()); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		ctx, cancel := requestContext(r)
		defer cancel()

		entries, err := bridge.Sessions(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		type respDTO struct {
			ServerID  string    `json:"serverId"`
			Username  string    `json:"username"`
			CreatedAt time.Time `json:"createdAt"`
		}

		respDTOs := make([]respDTO, 0, len(entries))
		for _, entry := range entries {
			if reqDTO.Username != "" && entry.Username != reqDTO.Username {
				continue
			}
			respDTOs = append(respDTOs, respDTO{
				ServerID:  entry.ServerID,
				Username:  entry.Username,
				CreatedAt: entry.CreatedAt,
			})
		}

		render.JSON(w, r, respDTOs)
	}
}

func deleteSessionHandler(bridge alphabridge.API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()

		removed, err := bridge.RemoveSession(ctx, chi.URLParam(r, "serverId"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !removed {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getProfileHandler(bridge alphabridge.API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()

		profile, err := bridge.Profile(ctx, chi.URLParam(r, "username"))
		if err != nil {
			if errors.Is(err, alphabridge.ErrProfileNotFound) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		dto := struct {
			Username string `json:"username"`
			UUID     string `json:"uuid"`
			SkinURL  string `json:"skinUrl,omitempty"`
			CapeURL  string `json:"capeUrl,omitempty"`
		}{
			Username: profile.Username,
			UUID:     profile.ID.String(),
			SkinURL:  profile.SkinURL,
			CapeURL:  profile.CapeURL,
		}

		render.JSON(w, r, dto)
	}
}

func deleteProfileHandler(bridge alphabridge.API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()

		removed, err := bridge.RemoveProfile(ctx, chi.URLParam(r, "username"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !removed {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getStatusHandler(bridge alphabridge.API) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()

		status, err := bridge.Status(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		render.JSON(w, r, status)
	}
}
