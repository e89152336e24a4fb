package handler

import (
	"log"
	"net/http"

	"expanddesk/internal/model"
	"expanddesk/internal/repository"
	"expanddesk/internal/transport/http/middleware"
)

// RepoUserLoader resolves the authenticated user against the users table.
// Falls back to the token snapshot when the lookup fails, which covers
// every operation that does not need category sets.
type RepoUserLoader struct {
	users repository.UserRepository
}

func NewRepoUserLoader(users repository.UserRepository) *RepoUserLoader {
	return &RepoUserLoader{users: users}
}

func (l *RepoUserLoader) Load(r *http.Request) (*model.User, bool) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		return nil, false
	}

	user, err := l.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("[Handler] User load FAILED, using token snapshot: user=%d err=%v", claims.UserID, err)
		return claims.User(), true
	}
	return user, true
}
