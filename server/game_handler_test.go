package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"SquizFM/core/auth"
	"SquizFM/core/game"
	"SquizFM/model"
	"SquizFM/store"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
)

// fixedCatalog 固定曲目池的曲库实现
type fixedCatalog struct {
	pool []model.CatalogTrack
}

func (f *fixedCatalog) LoadPlaylistTracks(ctx context.Context, playlistID string) ([]model.CatalogTrack, error) {
	return f.pool, nil
}

func (f *fixedCatalog) LoadDecoyCandidates(ctx context.Context, playlistID string) ([]model.CatalogTrack, error) {
	return f.pool, nil
}

func testPool(n int) []model.CatalogTrack {
	pool := make([]model.CatalogTrack, n)
	for i := 0; i < n; i++ {
		pool[i] = model.CatalogTrack{
			ID:         fmt.Sprintf("t%d", i),
			Name:       fmt.Sprintf("Song %d", i),
			Popularity: 100 - i,
			Artists:    []model.CatalogArtist{{ID: "a", Name: "Artist"}},
			PreviewURL: "https://p/x.mp3",
		}
	}
	return pool
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	auth.SetSecret("test-secret")

	st := store.NewMemoryStore()
	rules := game.Rules{RoundsLimit: 5, TracksLimit: 10, GuessAttempts: 1}
	manager := game.NewSessionManager(st, &fixedCatalog{pool: testPool(8)}, game.NewSelector(1), rules, nil)
	driver := game.NewDriver(manager, clockwork.NewFakeClock())
	t.Cleanup(driver.StopAll)

	h := NewGameHandler(manager, driver)
	router := mux.NewRouter()
	router.HandleFunc("/api/games", h.CreateGameHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}", h.GameAuth(h.GetGameHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/games/{id}/players", h.JoinGameHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/pause", h.HostAuth(h.PauseHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/games/{id}/presence", h.GameAuth(h.PresenceHandler)).Methods(http.MethodPut)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createGame(t *testing.T, router *mux.Router) (gameID, hostToken string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/games", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create game status = %d", w.Code)
	}
	var resp struct {
		GameID string `json:"gameId"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.GameID, resp.Token
}

func TestGameAuthMiddleware(t *testing.T) {
	router := newTestRouter(t)
	gameID, hostToken := createGame(t, router)

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid host token", hostToken, http.StatusOK},
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodGet, "/api/games/"+gameID, c.token, nil)
			if w.Code != c.want {
				t.Errorf("status = %d, want %d", w.Code, c.want)
			}
		})
	}

	// 令牌只在签发的那局游戏内有效
	otherID, _ := createGame(t, router)
	w := doJSON(t, router, http.MethodGet, "/api/games/"+otherID, hostToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("cross-game token status = %d, want 403", w.Code)
	}
}

func TestHostAuthRejectsPlayerToken(t *testing.T) {
	router := newTestRouter(t)
	gameID, hostToken := createGame(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/games/"+gameID+"/players", "", map[string]string{"name": "Alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("join status = %d", w.Code)
	}
	var joined struct {
		Player model.Player `json:"player"`
		Token  string       `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &joined); err != nil {
		t.Fatalf("decode join response: %v", err)
	}

	if w := doJSON(t, router, http.MethodPost, "/api/games/"+gameID+"/pause", joined.Token, nil); w.Code != http.StatusForbidden {
		t.Errorf("player token on host route status = %d, want 403", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/api/games/"+gameID+"/pause", hostToken, nil); w.Code != http.StatusNoContent {
		t.Errorf("host token on host route status = %d, want 204", w.Code)
	}
}

func TestPresenceUsesTokenIdentity(t *testing.T) {
	router := newTestRouter(t)
	gameID, _ := createGame(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/games/"+gameID+"/players", "", map[string]string{"name": "Bob"})
	if w.Code != http.StatusCreated {
		t.Fatalf("join status = %d", w.Code)
	}
	var joined struct {
		Player model.Player `json:"player"`
		Token  string       `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &joined); err != nil {
		t.Fatalf("decode join response: %v", err)
	}

	// 玩家令牌只更新自己的在场标记
	if w := doJSON(t, router, http.MethodPut, "/api/games/"+gameID+"/presence", joined.Token, map[string]bool{"present": false}); w.Code != http.StatusNoContent {
		t.Fatalf("presence status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/api/games/"+gameID, joined.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get game status = %d", w.Code)
	}
	var resp struct {
		View model.SessionView `json:"view"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	found := false
	for _, p := range resp.View.Players {
		if p.ID == joined.Player.ID {
			found = true
			if p.Inactive == 0 {
				t.Error("player should be marked inactive")
			}
		}
	}
	if !found {
		t.Fatal("joined player missing from view")
	}
}
