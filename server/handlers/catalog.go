package handlers

import (
	"net/http"

	"github.com/teilomillet/promptgate/server/catalog"
	"go.uber.org/zap"
)

// RolesResponse lists the chat personas in role id order.
type RolesResponse struct {
	Roles []catalog.Persona `json:"roles"`
}

// LanguagesResponse lists the language keys with a dedicated template.
type LanguagesResponse struct {
	Languages []string `json:"languages"`
	Default   string   `json:"default"`
}

// Roles serves GET /roles.
func Roles(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, logger, http.StatusOK, RolesResponse{Roles: catalog.Personas()})
	}
}

// Languages serves GET /languages.
func Languages(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, logger, http.StatusOK, LanguagesResponse{
			Languages: catalog.Languages(),
			Default:   catalog.DefaultLanguageKey,
		})
	}
}
