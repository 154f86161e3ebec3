package gateway

import "github.com/go-chi/chi/v5"

func newChiRouterForTest() chi.Router {
	return chi.NewRouter()
}
