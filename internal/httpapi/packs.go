package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/al3dwii/agenticBE/internal/packs"
)

func registerPackRoutes(router *mux.Router, deps Deps) {
	router.HandleFunc("/packs", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, deps.Registry.List())
	}).Methods(http.MethodGet)

	router.HandleFunc("/packs/{pack}/{agent}/schema", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		agent, err := deps.Registry.Lookup(vars["pack"], vars["agent"])
		if err != nil {
			if errors.Is(err, packs.ErrUnknownAgent) {
				respondError(w, http.StatusNotFound, err.Error())
				return
			}
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(agent.SchemaDocument())
	}).Methods(http.MethodGet)
}
