package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/viollenaki/nurtilek/internal/auth"
	"github.com/viollenaki/nurtilek/internal/config"
	"github.com/viollenaki/nurtilek/internal/email"
	"github.com/viollenaki/nurtilek/internal/handlers"
	"github.com/viollenaki/nurtilek/internal/middleware"
	"github.com/viollenaki/nurtilek/internal/session"
	"github.com/viollenaki/nurtilek/internal/store/sqlstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()

	// The schema is brought up to date before the server accepts connections.
	store, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	sessions := session.NewManager(cfg.SessionTTL)
	signer := auth.NewSigner(cfg.CookieSecret)
	mail := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.FromEmail)

	authHandler := &handlers.AuthHandler{Store: store, Sessions: sessions, Signer: signer, Mail: mail, Cfg: cfg}
	userHandler := &handlers.UserHandler{Store: store, Sessions: sessions, Cfg: cfg}
	chatHandler := &handlers.ChatHandler{Store: store, PageSize: cfg.PageSize}
	groupHandler := &handlers.GroupHandler{Store: store}

	r := mux.NewRouter()
	r.Use(middleware.Logging)

	api := r.PathPrefix("/api").Subrouter()

	// Public endpoints
	api.HandleFunc("/check-nickname", authHandler.CheckNickname).Methods("POST")
	api.HandleFunc("/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/verification/send", authHandler.SendVerificationCode).Methods("POST")

	// Everything below requires a logged-in session
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Auth(sessions, signer))

	protected.HandleFunc("/logout", authHandler.Logout).Methods("POST")
	protected.HandleFunc("/ping", authHandler.Ping).Methods("GET")

	protected.HandleFunc("/user/info", userHandler.Info).Methods("GET")
	protected.HandleFunc("/user/profile", userHandler.UpdateProfile).Methods("PUT")
	protected.HandleFunc("/user/photo", userHandler.OwnPhoto).Methods("GET")
	protected.HandleFunc("/users/{id:[0-9]+}/photo", userHandler.Photo).Methods("GET")
	protected.HandleFunc("/users/search", userHandler.Search).Methods("GET")

	protected.HandleFunc("/chats", chatHandler.GetChats).Methods("GET")
	protected.HandleFunc("/chats", chatHandler.CreateDialog).Methods("POST")
	protected.HandleFunc("/chats/{id:[0-9]+}/messages", chatHandler.GetMessages).Methods("GET")
	protected.HandleFunc("/chats/{id:[0-9]+}/messages", chatHandler.SendMessage).Methods("POST")
	protected.HandleFunc("/messages/{id:[0-9]+}/media", chatHandler.GetMedia).Methods("GET")

	protected.HandleFunc("/groups", groupHandler.Create).Methods("POST")
	protected.HandleFunc("/groups/{id:[0-9]+}", groupHandler.Get).Methods("GET")
	protected.HandleFunc("/groups/{id:[0-9]+}", groupHandler.Update).Methods("PUT")
	protected.HandleFunc("/groups/{id:[0-9]+}", groupHandler.Delete).Methods("DELETE")
	protected.HandleFunc("/groups/{id:[0-9]+}/leave", groupHandler.Leave).Methods("POST")
	protected.HandleFunc("/groups/{id:[0-9]+}/members", groupHandler.AddMembers).Methods("POST")
	protected.HandleFunc("/groups/{id:[0-9]+}/members/{userId:[0-9]+}", groupHandler.RemoveMember).Methods("DELETE")
	protected.HandleFunc("/groups/{id:[0-9]+}/admins", groupHandler.ToggleAdmin).Methods("POST")
	protected.HandleFunc("/groups/{id:[0-9]+}/photo", groupHandler.Photo).Methods("GET")

	log.Println("Starting server on", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, r))
}
