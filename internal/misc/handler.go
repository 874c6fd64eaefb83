package misc

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/2beens/gymsheets/internal/auth"
	"github.com/2beens/gymsheets/pkg"
)

type Handler struct {
	versionInfo string
}

type WhoAmIResponse struct {
	OwnerID string `json:"ownerId"`
}

func NewHandler(versionInfo string) *Handler {
	return &Handler{
		versionInfo: versionInfo,
	}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "POST", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/myip", handler.handleGetMyIp).Methods("GET").Name("myip")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")
	mainRouter.HandleFunc("/whoami", handler.handleWhoAmI).Methods("GET").Name("whoami")
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (handler *Handler) handleGetMyIp(w http.ResponseWriter, r *http.Request) {
	ip := pkg.ReadUserIP(r)
	if ip == "" {
		http.Error(w, "error getting ip", http.StatusInternalServerError)
		return
	}
	pkg.WriteTextResponseOK(w, ip)
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, handler.versionInfo)
}

// handleWhoAmI lets clients check their session token is still good.
func (handler *Handler) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	pkg.WriteJSON(w, WhoAmIResponse{OwnerID: owner}, http.StatusOK)
}
