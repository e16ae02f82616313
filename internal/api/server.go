package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"league-auction/internal/db"
	"league-auction/internal/engine"
	"league-auction/internal/model"
	"league-auction/internal/ws"
)

type Server struct {
	store  *db.Store
	engine *engine.Engine
	hub    *ws.Hub
	secret []byte
}

func NewServer(store *db.Store, eng *engine.Engine, hub *ws.Hub, secret string) *Server {
	return &Server{store: store, engine: eng, hub: hub, secret: []byte(secret)}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	// Health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json200(w, map[string]string{"status": "ok"})
	})

	// Auth (public)
	r.Post("/api/register", s.register)
	r.Post("/api/login", s.login)

	// WebSocket
	r.Get("/ws", s.hub.HandleWS)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Leagues
		r.Get("/api/leagues", s.listLeagues)
		r.Get("/api/leagues/{id}", s.getLeague)
		r.Get("/api/leagues/{id}/teams", s.listTeams)
		r.Get("/api/teams/{id}", s.getTeam)
		r.Get("/api/leagues/{id}/players", s.listPlayers)

		// Auction room
		r.Get("/api/leagues/{id}/auction", s.getAuction)
		r.Get("/api/leagues/{id}/auction/bids", s.listBids)
		r.Post("/api/leagues/{id}/auction/bid", s.placeBid)

		// Admin (auctioneer console)
		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/api/admin/leagues", s.createLeague)
			r.Post("/api/admin/leagues/{id}/teams", s.createTeam)
			r.Post("/api/admin/leagues/{id}/players", s.createPlayer)
			r.Post("/api/admin/leagues/{id}/auction/start", s.startAuction)
			r.Post("/api/admin/leagues/{id}/auction/reset-price", s.resetPrice)
			r.Post("/api/admin/leagues/{id}/auction/sold", s.finalizeSold)
			r.Post("/api/admin/leagues/{id}/auction/unsold", s.finalizeUnsold)
			r.Post("/api/admin/leagues/{id}/reset-budgets", s.resetBudgets)
		})
	})

	return r
}

// ── Auth ─────────────────────────────────────────────

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string  `json:"email"`
		Password string  `json:"password"`
		TeamID   *string `json:"team_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.Email == "" || len(req.Password) < 6 {
		jsonErr(w, 400, "email and password (min 6 chars) required")
		return
	}

	existing, _ := s.store.GetUserByEmail(r.Context(), req.Email)
	if existing != nil {
		jsonErr(w, 409, "email already registered")
		return
	}
	if req.TeamID != nil {
		team, err := s.store.TeamByID(r.Context(), *req.TeamID)
		if err != nil || team == nil {
			jsonErr(w, 400, "unknown team")
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonErr(w, 500, "hash failed")
		return
	}

	user, err := s.store.CreateUser(r.Context(), uuid.New().String(), req.Email, string(hash), model.RoleUser, req.TeamID)
	if err != nil {
		jsonErr(w, 500, "create user failed: "+err.Error())
		return
	}

	token := s.makeToken(user)
	json200(w, map[string]any{"user": user, "token": token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		jsonErr(w, 401, "invalid credentials")
		return
	}

	token := s.makeToken(user)
	json200(w, map[string]any{"user": user, "token": token})
}

func (s *Server) makeToken(u *model.User) string {
	claims := jwt.MapClaims{
		"sub":  u.ID,
		"role": string(u.Role),
		"exp":  time.Now().Add(72 * time.Hour).Unix(),
	}
	if u.TeamID != nil {
		claims["team"] = *u.TeamID
	}
	t, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return t
}

// ── Middleware ────────────────────────────────────────

type ctxKey string

const (
	ctxUserID ctxKey = "userID"
	ctxRole   ctxKey = "role"
	ctxTeamID ctxKey = "teamID"
)

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			jsonErr(w, 401, "missing token")
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			jsonErr(w, 401, "invalid token")
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			jsonErr(w, 401, "invalid claims")
			return
		}
		userID, _ := claims["sub"].(string)
		role, _ := claims["role"].(string)
		teamID, _ := claims["team"].(string)
		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		ctx = context.WithValue(ctx, ctxRole, role)
		ctx = context.WithValue(ctx, ctxTeamID, teamID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(ctxRole).(string)
		if role != string(model.RoleAdmin) {
			jsonErr(w, 403, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ── Leagues ──────────────────────────────────────────

func (s *Server) listLeagues(w http.ResponseWriter, r *http.Request) {
	leagues, err := s.store.ListLeagues(r.Context())
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if leagues == nil {
		leagues = []model.League{}
	}
	json200(w, leagues)
}

func (s *Server) getLeague(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	league, err := s.store.LeagueByID(r.Context(), id)
	if err != nil || league == nil {
		jsonErr(w, 404, "league not found")
		return
	}
	json200(w, league)
}

func (s *Server) createLeague(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		DisplayName  string `json:"display_name"`
		DefaultPurse int64  `json:"default_purse"`
		MaxSquadSize int    `json:"max_squad_size"`
		MinSquadSize int    `json:"min_squad_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.Name == "" {
		jsonErr(w, 400, "name required")
		return
	}
	if req.DefaultPurse <= 0 {
		req.DefaultPurse = model.DefaultPurse
	}
	if req.MaxSquadSize <= 0 {
		req.MaxSquadSize = model.DefaultMaxSquadSize
	}
	if req.MinSquadSize <= 0 {
		req.MinSquadSize = model.DefaultMinSquadSize
	}

	league := &model.League{
		ID:           uuid.New().String(),
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		DefaultPurse: req.DefaultPurse,
		MaxSquadSize: req.MaxSquadSize,
		MinSquadSize: req.MinSquadSize,
	}
	if err := s.store.CreateLeague(r.Context(), league); err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(league)
}

// ── Teams ────────────────────────────────────────────

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	teams, err := s.store.ListTeams(r.Context(), leagueID)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if teams == nil {
		teams = []model.Team{}
	}
	json200(w, teams)
}

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	var req struct {
		Name   string `json:"name"`
		Budget int64  `json:"budget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.Name == "" {
		jsonErr(w, 400, "name required")
		return
	}

	league, err := s.store.LeagueByID(r.Context(), leagueID)
	if err != nil || league == nil {
		jsonErr(w, 404, "league not found")
		return
	}
	budget := req.Budget
	if budget <= 0 {
		budget = league.DefaultPurse
	}

	team := &model.Team{
		ID:              uuid.New().String(),
		LeagueID:        leagueID,
		Name:            req.Name,
		BudgetRemaining: budget,
		BudgetInitial:   budget,
	}
	if err := s.store.CreateTeam(r.Context(), team); err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(team)
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	team, err := s.store.TeamByID(r.Context(), id)
	if err != nil || team == nil {
		jsonErr(w, 404, "team not found")
		return
	}
	spent, err := s.store.SpentByTeam(r.Context(), id)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	json200(w, map[string]any{"team": team, "spent": spent})
}

func (s *Server) resetBudgets(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	n, err := s.store.ResetLeagueBudgets(r.Context(), leagueID)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	json200(w, map[string]any{"teams_reset": n})
}

// ── Players ──────────────────────────────────────────

func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	status := model.PlayerStatus(r.URL.Query().Get("status"))
	players, err := s.store.ListPlayers(r.Context(), leagueID, status)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if players == nil {
		players = []model.Player{}
	}
	json200(w, players)
}

func (s *Server) createPlayer(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	var req struct {
		Name      string `json:"name"`
		Position  string `json:"position"`
		Country   string `json:"country"`
		BasePrice int64  `json:"base_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.Name == "" {
		jsonErr(w, 400, "name required")
		return
	}
	if req.BasePrice <= 0 {
		req.BasePrice = model.DefaultBasePrice
	}

	league, err := s.store.LeagueByID(r.Context(), leagueID)
	if err != nil || league == nil {
		jsonErr(w, 404, "league not found")
		return
	}

	player := &model.Player{
		ID:        uuid.New().String(),
		LeagueID:  leagueID,
		Name:      req.Name,
		Position:  parsePosition(req.Position),
		Country:   req.Country,
		BasePrice: req.BasePrice,
		Status:    model.PlayerAvailable,
	}
	if err := s.store.CreatePlayer(r.Context(), player); err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(player)
}

func parsePosition(s string) model.PlayerPosition {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BATTER", "BATSMAN":
		return model.PositionBatter
	case "BOWLER":
		return model.PositionBowler
	case "KEEPER", "WICKETKEEPER", "WK":
		return model.PositionKeeper
	default:
		return model.PositionAllrounder
	}
}

// ── Auction ──────────────────────────────────────────

func (s *Server) getAuction(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	state, recent, err := s.engine.Room(r.Context(), leagueID)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if recent == nil {
		recent = []model.Bid{}
	}
	json200(w, map[string]any{"state": state, "recent_bids": recent})
}

func (s *Server) listBids(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}
	bids, err := s.engine.History(r.Context(), leagueID, limit)
	if err != nil {
		jsonErr(w, 500, err.Error())
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}
	json200(w, bids)
}

func (s *Server) placeBid(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")

	var req model.PlaceBidReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.PlayerID == "" || req.TeamID == "" {
		jsonErr(w, 400, "player_id and team_id required")
		return
	}
	if req.Amount <= 0 {
		jsonErr(w, 400, "amount must be > 0")
		return
	}

	// Team clients may only bid for their own team; the auctioneer may
	// bid for any team in the room.
	role, _ := r.Context().Value(ctxRole).(string)
	if role != string(model.RoleAdmin) {
		teamID, _ := r.Context().Value(ctxTeamID).(string)
		if teamID == "" || teamID != req.TeamID {
			s.engineErr(w, model.ErrUnauthorized)
			return
		}
	}

	res, err := s.engine.PlaceBid(r.Context(), leagueID, req)
	if err != nil {
		s.engineErr(w, err)
		return
	}
	json200(w, res)
}

func (s *Server) startAuction(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.PlayerID == "" {
		jsonErr(w, 400, "player_id required")
		return
	}

	res, err := s.engine.Start(r.Context(), leagueID, req.PlayerID)
	if err != nil {
		s.engineErr(w, err)
		return
	}
	json200(w, res)
}

func (s *Server) resetPrice(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	var req struct {
		NewPrice int64 `json:"new_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, 400, "invalid json")
		return
	}
	if req.NewPrice <= 0 {
		jsonErr(w, 400, "new_price must be > 0")
		return
	}

	res, err := s.engine.ResetPrice(r.Context(), leagueID, req.NewPrice)
	if err != nil {
		s.engineErr(w, err)
		return
	}
	json200(w, res)
}

func (s *Server) finalizeSold(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	res, err := s.engine.FinalizeSold(r.Context(), leagueID)
	if err != nil {
		s.engineErr(w, err)
		return
	}
	json200(w, res)
}

func (s *Server) finalizeUnsold(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")
	res, err := s.engine.FinalizeUnsold(r.Context(), leagueID)
	if err != nil {
		s.engineErr(w, err)
		return
	}
	json200(w, res)
}

// ── Helpers ──────────────────────────────────────────

// engineErr maps the engine's typed failures to HTTP statuses. Lock
// timeouts get 503 so clients know a verbatim retry is safe; version
// conflicts get 409 so clients re-fetch state before retrying.
func (s *Server) engineErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrNoActiveAuction):
		jsonErr(w, 404, err.Error())
	case errors.Is(err, model.ErrAuctionInProgress),
		errors.Is(err, model.ErrStaleAuction),
		errors.Is(err, model.ErrConcurrencyConflict):
		jsonErr(w, 409, err.Error())
	case errors.Is(err, model.ErrLockTimeout):
		jsonErr(w, 503, err.Error())
	case errors.Is(err, model.ErrUnauthorized):
		jsonErr(w, 403, err.Error())
	case errors.Is(err, model.ErrInvalidBid),
		errors.Is(err, model.ErrInsufficientBudget),
		errors.Is(err, model.ErrNoBids),
		errors.Is(err, model.ErrSquadFull),
		errors.Is(err, model.ErrNotAuctionable):
		jsonErr(w, 400, err.Error())
	default:
		jsonErr(w, 500, err.Error())
	}
}

func json200(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
