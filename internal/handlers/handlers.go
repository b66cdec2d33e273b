package handlers

import (
	"encoding/json"
	"net/http"

	"finsync/internal/auth"
	"finsync/internal/models"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func ownerFromToken(secret, token string) (models.Owner, error) {
	claims, err := auth.ParseToken(secret, token)
	if err != nil {
		return models.Owner{}, err
	}
	if claims.FamilyID != "" {
		return models.FamilyOwner(claims.FamilyID), nil
	}
	return models.UserOwner(claims.UserID), nil
}

func ownsAccount(owner models.Owner, account models.Account) bool {
	if owner.UserID != nil {
		return account.UserID != nil && *account.UserID == *owner.UserID
	}
	if owner.FamilyID != nil {
		return account.FamilyID != nil && *account.FamilyID == *owner.FamilyID
	}
	return false
}
