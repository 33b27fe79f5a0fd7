package persona

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/codementor/backend/internal/model/persona"
)

func TestListPersonasHidesInstruction(t *testing.T) {
	r := chi.NewRouter()
	New(persona.NewMemoryStore(persona.Seed())).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/personas", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), persona.Seed()[0].SystemInstruction) {
		t.Fatal("system instruction must not be exposed")
	}

	var got []persona.Persona
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(got) != 1 || got[0].ID != persona.DefaultID {
		t.Fatalf("unexpected personas: %+v", got)
	}
}
