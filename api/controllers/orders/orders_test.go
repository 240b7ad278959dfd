package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/wholesale-backend/api/middleware"
	internalorders "github.com/angelmondragon/wholesale-backend/internal/orders"
	"github.com/angelmondragon/wholesale-backend/pkg/auth"
	"github.com/angelmondragon/wholesale-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/wholesale-backend/pkg/errors"
	"github.com/angelmondragon/wholesale-backend/pkg/pagination"
)

type stubOrdersService struct {
	listInput internalorders.ListInput
	principal auth.Principal
	calledID  uuid.UUID
	action    string
	err       error
}

func (s *stubOrdersService) Get(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.record("get", principal, orderID)
}

func (s *stubOrdersService) List(ctx context.Context, principal auth.Principal, input internalorders.ListInput) (*pagination.Page[internalorders.OrderDTO], error) {
	s.principal = principal
	s.listInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &pagination.Page[internalorders.OrderDTO]{
		Items:      []internalorders.OrderDTO{{ID: uuid.New(), Status: enums.OrderStatusConfirmed}},
		NextCursor: "next",
	}, nil
}

func (s *stubOrdersService) Ship(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.record("ship", principal, orderID)
}

func (s *stubOrdersService) Complete(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.record("complete", principal, orderID)
}

func (s *stubOrdersService) Cancel(ctx context.Context, principal auth.Principal, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.record("cancel", principal, orderID)
}

func (s *stubOrdersService) record(action string, principal auth.Principal, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	s.action = action
	s.principal = principal
	s.calledID = orderID
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.OrderDTO{ID: orderID, Status: enums.OrderStatusShipped}, nil
}

func newRouter(svc internalorders.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/orders", List(svc, nil))
	r.Get("/api/v1/orders/{orderId}", Detail(svc, nil))
	r.Post("/api/v1/orders/{orderId}/ship", Ship(svc, nil))
	r.Post("/api/v1/orders/{orderId}/complete", Complete(svc, nil))
	r.Post("/api/v1/orders/{orderId}/cancel", Cancel(svc, nil))
	return r
}

func authedRequest(method, target string, userID uuid.UUID, role enums.MemberRole) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, role)
	return req.WithContext(ctx)
}

func TestListPassesFiltersAndPrincipal(t *testing.T) {
	svc := &stubOrdersService{}
	userID := uuid.New()

	req := authedRequest(http.MethodGet, "/api/v1/orders?limit=5&cursor=abc&status=confirmed", userID, enums.MemberRoleRetailer)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.principal.UserID != userID || svc.principal.Role != enums.MemberRoleRetailer {
		t.Fatalf("unexpected principal %+v", svc.principal)
	}
	if svc.listInput.Limit != 5 || svc.listInput.Cursor != "abc" {
		t.Fatalf("unexpected list input %+v", svc.listInput)
	}
	if svc.listInput.Status == nil || *svc.listInput.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected confirmed status filter, got %v", svc.listInput.Status)
	}

	var body struct {
		Data pagination.Page[internalorders.OrderDTO] `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Items) != 1 || body.Data.NextCursor != "next" {
		t.Fatalf("unexpected page %+v", body.Data)
	}
}

func TestListRejectsBadQuery(t *testing.T) {
	cases := map[string]string{
		"unknown status": "/api/v1/orders?status=paid",
		"limit too high": "/api/v1/orders?limit=1000",
		"limit not int":  "/api/v1/orders?limit=ten",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(&stubOrdersService{}).ServeHTTP(rec, authedRequest(http.MethodGet, target, uuid.New(), enums.MemberRoleAdmin))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandlersRequirePrincipal(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubOrdersService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newRouter(&stubOrdersService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/ship", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTransitionsRouteToService(t *testing.T) {
	for _, action := range []string{"ship", "complete", "cancel"} {
		t.Run(action, func(t *testing.T) {
			svc := &stubOrdersService{}
			orderID := uuid.New()
			rec := httptest.NewRecorder()
			newRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/"+action, uuid.New(), enums.MemberRoleWholesaler))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
			}
			if svc.action != action || svc.calledID != orderID {
				t.Fatalf("expected %s on %s, got %s on %s", action, orderID, svc.action, svc.calledID)
			}
		})
	}
}

func TestDetailRejectsMalformedID(t *testing.T) {
	svc := &stubOrdersService{}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/orders/not-a-uuid", uuid.New(), enums.MemberRoleRetailer))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.action != "" {
		t.Fatal("service must not be called")
	}
}

func TestTransitionErrorsKeepTheirStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{internalorders.NotFound(), http.StatusNotFound},
		{pkgerrors.New(pkgerrors.CodeForbidden, "only the wholesaler can ship"), http.StatusForbidden},
		{pkgerrors.New(pkgerrors.CodeStateConflict, "illegal transition"), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		svc := &stubOrdersService{err: tc.err}
		rec := httptest.NewRecorder()
		newRouter(svc).ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/ship", uuid.New(), enums.MemberRoleWholesaler))
		if rec.Code != tc.status {
			t.Fatalf("expected %d for %v, got %d", tc.status, tc.err, rec.Code)
		}
	}
}

func TestNilServiceIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(nil).ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), uuid.New(), enums.MemberRoleAdmin))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
