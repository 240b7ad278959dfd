package settlements

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/wholesale-backend/api/middleware"
	internalsettlements "github.com/angelmondragon/wholesale-backend/internal/settlements"
	"github.com/angelmondragon/wholesale-backend/pkg/auth"
	"github.com/angelmondragon/wholesale-backend/pkg/db/models"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/pagination"
)

type stubSettlementsService struct {
	principal  auth.Principal
	listInput  internalsettlements.ListInput
	completeID uuid.UUID
	err        error
}

func (s *stubSettlementsService) List(ctx context.Context, principal auth.Principal, input internalsettlements.ListInput) (*pagination.Page[internalsettlements.SettlementDTO], error) {
	s.principal = principal
	s.listInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &pagination.Page[internalsettlements.SettlementDTO]{
		Items: []internalsettlements.SettlementDTO{{ID: uuid.New(), Status: enums.SettlementStatusPending}},
	}, nil
}

func (s *stubSettlementsService) CompleteEarly(ctx context.Context, principal auth.Principal, settlementID uuid.UUID) (*internalsettlements.SettlementDTO, error) {
	s.principal = principal
	s.completeID = settlementID
	if s.err != nil {
		return nil, s.err
	}
	now := time.Now().UTC()
	return &internalsettlements.SettlementDTO{ID: settlementID, Status: enums.SettlementStatusCompleted, CompletedAt: &now}, nil
}

func (s *stubSettlementsService) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Settlement, error) {
	return nil, nil
}

func (s *stubSettlementsService) CompleteScheduled(ctx context.Context, settlementID uuid.UUID) (bool, error) {
	return false, nil
}

func newRouter(svc internalsettlements.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/settlements", List(svc, nil))
	r.Post("/api/admin/v1/settlements/{settlementId}/complete", AdminComplete(svc, nil))
	return r
}

func authedRequest(method, target string, role enums.MemberRole) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, role)
	return req.WithContext(ctx)
}

func TestListForwardsStatusFilter(t *testing.T) {
	svc := &stubSettlementsService{}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/settlements?status=pending&limit=10", enums.MemberRoleWholesaler))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.listInput.Status == nil || *svc.listInput.Status != enums.SettlementStatusPending {
		t.Fatalf("expected pending filter, got %v", svc.listInput.Status)
	}
	if svc.listInput.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", svc.listInput.Limit)
	}
	if svc.principal.Role != enums.MemberRoleWholesaler {
		t.Fatalf("unexpected principal %+v", svc.principal)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubSettlementsService{}).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/settlements?status=paid_out", enums.MemberRoleAdmin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListForbiddenForRetailer(t *testing.T) {
	svc := &stubSettlementsService{err: pkgerrors.New(pkgerrors.CodeForbidden, "settlements are visible to wholesalers and admins")}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/settlements", enums.MemberRoleRetailer))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAdminCompleteReturnsSettlement(t *testing.T) {
	svc := &stubSettlementsService{}
	settlementID := uuid.New()
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/admin/v1/settlements/"+settlementID.String()+"/complete", enums.MemberRoleAdmin))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.completeID != settlementID {
		t.Fatalf("expected %s, got %s", settlementID, svc.completeID)
	}
	var body struct {
		Data internalsettlements.SettlementDTO `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Status != enums.SettlementStatusCompleted {
		t.Fatalf("expected completed, got %s", body.Data.Status)
	}
}

func TestAdminCompleteErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubSettlementsService{}).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/admin/v1/settlements/nope/complete", enums.MemberRoleAdmin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	svc := &stubSettlementsService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "settlement is not pending")}
	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/admin/v1/settlements/"+uuid.NewString()+"/complete", enums.MemberRoleAdmin))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestAdminCompleteRequiresPrincipal(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubSettlementsService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/settlements/"+uuid.NewString()+"/complete", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
