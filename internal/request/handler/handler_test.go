package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"golden/internal/request/handler/mocks"
	"golden/internal/request/models"
	"golden/internal/request/permission"
	id "golden/pkg/domain"
	dErrors "golden/pkg/domain-errors"
	audit "golden/pkg/platform/audit"
	authmw "golden/pkg/platform/middleware/auth"
	"golden/pkg/testutil"
)

// =============================================================================
// Request Handler Test Suite
// =============================================================================
// Justification for unit tests: the handler owns path parsing, body decoding,
// role extraction and the error envelope, including the duplicate conflict
// body. Service behavior is covered in the service package.

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterIngest(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) as(req *http.Request, role id.Role) *http.Request {
	req = testutil.WithActor(req, "frank")
	return req.WithContext(authmw.WithRole(req.Context(), role))
}

func sampleRequest(status models.Status) *models.Request {
	r := models.NewDraft(id.NewRequestID(), models.Profile{
		Name:         "Acme",
		TaxNumber:    "T-1",
		CustomerType: "Corp",
	}, "frank", time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	r.Status = status
	return r
}

func (s *HandlerSuite) TestCreate() {
	s.Run("creates a draft for the caller's role", func() {
		created := sampleRequest(models.StatusNew)
		s.service.EXPECT().
			CreateDraft(gomock.Any(), models.Profile{Name: "Acme", TaxNumber: "T-1", CustomerType: "Corp"}, id.RoleDataEntry).
			Return(created, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests", ProfileRequest{
			Name: "Acme", TaxNumber: "T-1", CustomerType: "Corp",
		})
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleDataEntry))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[RequestResponse](s.T(), rr)
		s.Equal(created.ID.String(), resp.ID)
		s.Equal("New", resp.Status)
		s.Equal("data_entry", resp.AssignedTo)
	})

	s.Run("missing role is unauthorized", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests", ProfileRequest{Name: "Acme"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})

	s.Run("unknown fields are rejected", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/requests", `{"name":"Acme","status":"Active"}`)
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleDataEntry))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("forbidden role maps to 403", func() {
		s.service.EXPECT().CreateDraft(gomock.Any(), gomock.Any(), id.RoleReviewer).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "only data entry can create requests"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests", ProfileRequest{Name: "Acme"})
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleReviewer))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})
}

func (s *HandlerSuite) TestTransitions() {
	cases := []struct {
		path   string
		role   id.Role
		expect func(requestID id.RequestID) *gomock.Call
	}{
		{"submit", id.RoleDataEntry, func(rid id.RequestID) *gomock.Call {
			return s.service.EXPECT().Submit(gomock.Any(), rid, id.RoleDataEntry)
		}},
		{"complete-quarantine", id.RoleDataEntry, func(rid id.RequestID) *gomock.Call {
			return s.service.EXPECT().CompleteQuarantine(gomock.Any(), rid, id.RoleDataEntry)
		}},
		{"approve", id.RoleReviewer, func(rid id.RequestID) *gomock.Call {
			return s.service.EXPECT().Approve(gomock.Any(), rid, id.RoleReviewer)
		}},
		{"reject", id.RoleReviewer, func(rid id.RequestID) *gomock.Call {
			return s.service.EXPECT().Reject(gomock.Any(), rid, id.RoleReviewer, "")
		}},
		{"compliance-approve", id.RoleCompliance, func(rid id.RequestID) *gomock.Call {
			return s.service.EXPECT().ComplianceApprove(gomock.Any(), rid, id.RoleCompliance)
		}},
	}
	for _, tc := range cases {
		s.Run(tc.path, func() {
			rec := sampleRequest(models.StatusPending)
			tc.expect(rec.ID).Return(rec, nil)

			req := testutil.NewRequest(s.T(), http.MethodPost, "/requests/"+rec.ID.String()+"/"+tc.path)
			rr := testutil.DoRequest(s.router, s.as(req, tc.role))

			testutil.AssertStatusOK(s.T(), rr)
			resp := testutil.UnmarshalResponse[RequestResponse](s.T(), rr)
			s.Equal(rec.ID.String(), resp.ID)
		})
	}
}

func (s *HandlerSuite) TestDecisionReasons() {
	s.Run("reject passes the reason", func() {
		rec := sampleRequest(models.StatusRejected)
		s.service.EXPECT().Reject(gomock.Any(), rec.ID, id.RoleReviewer, "missing documents").Return(rec, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests/"+rec.ID.String()+"/reject",
			DecisionRequest{Reason: "missing documents"})
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleReviewer))
		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("block without reason surfaces validation", func() {
		rec := sampleRequest(models.StatusApproved)
		s.service.EXPECT().ComplianceBlock(gomock.Any(), rec.ID, id.RoleCompliance, "").
			Return(nil, dErrors.New(dErrors.CodeValidation, "block reason is required"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests/"+rec.ID.String()+"/compliance-block",
			DecisionRequest{})
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleCompliance))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, string(dErrors.CodeValidation))
	})
}

func (s *HandlerSuite) TestErrorMapping() {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid transition", dErrors.New(dErrors.CodeInvalidTransition, "approve is not allowed from New"), http.StatusConflict},
		{"not found", dErrors.New(dErrors.CodeNotFound, "request not found"), http.StatusNotFound},
		{"timeout", dErrors.New(dErrors.CodeTimeout, "lock wait exceeded"), http.StatusServiceUnavailable},
		{"internal", dErrors.New(dErrors.CodeInternal, "failed to save request"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rid := id.NewRequestID()
			s.service.EXPECT().Approve(gomock.Any(), rid, id.RoleReviewer).Return(nil, tc.err)

			req := testutil.NewRequest(s.T(), http.MethodPost, "/requests/"+rid.String()+"/approve")
			rr := testutil.DoRequest(s.router, s.as(req, id.RoleReviewer))
			testutil.AssertStatusAndError(s.T(), rr, tc.status, string(dErrors.CodeOf(tc.err)))
		})
	}

	s.Run("internal errors do not leak their message", func() {
		rid := id.NewRequestID()
		s.service.EXPECT().Approve(gomock.Any(), rid, id.RoleReviewer).
			Return(nil, dErrors.New(dErrors.CodeInternal, "pq: connection refused"))

		req := testutil.NewRequest(s.T(), http.MethodPost, "/requests/"+rid.String()+"/approve")
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleReviewer))
		body := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Empty(body["error_description"])
	})

	s.Run("malformed id is a bad request", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/requests/not-a-uuid")
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleReviewer))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}

func (s *HandlerSuite) TestDuplicateConflictBody() {
	rec := sampleRequest(models.StatusRejected)
	golden := sampleRequest(models.StatusActive)
	s.service.EXPECT().Submit(gomock.Any(), rec.ID, id.RoleDataEntry).
		Return(nil, models.NewDuplicateConflictError(rec.Key(), golden))

	req := testutil.NewRequest(s.T(), http.MethodPost, "/requests/"+rec.ID.String()+"/submit")
	rr := testutil.DoRequest(s.router, s.as(req, id.RoleDataEntry))

	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	resp := testutil.UnmarshalResponse[DuplicateConflictResponse](s.T(), rr)
	s.Equal(string(dErrors.CodeDuplicateConflict), resp.Error)
	s.Equal(golden.ID, resp.Conflict.ID)
	s.Equal("Acme", resp.Conflict.Name)
	s.Equal(models.StatusActive, resp.Conflict.Status)
}

func (s *HandlerSuite) TestGoldenEdit() {
	golden := sampleRequest(models.StatusActive)
	shadow, err := models.NewGoldenEdit(id.NewRequestID(), golden, "frank", time.Now())
	s.Require().NoError(err)
	s.service.EXPECT().StartGoldenEdit(gomock.Any(), golden.ID, id.RoleAdmin).Return(shadow, nil)

	req := testutil.NewRequest(s.T(), http.MethodPost, "/requests/"+golden.ID.String()+"/golden-edit")
	rr := testutil.DoRequest(s.router, s.as(req, id.RoleAdmin))

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[RequestResponse](s.T(), rr)
	s.Equal(shadow.ID.String(), resp.ID)
	s.Equal(golden.ID.String(), resp.SourceGoldenID)
	s.Equal("goldenEdit", resp.Origin)
}

func (s *HandlerSuite) TestReads() {
	rec := sampleRequest(models.StatusPending)

	s.Run("get", func() {
		s.service.EXPECT().Get(gomock.Any(), rec.ID, id.RoleCompliance).Return(rec, nil)
		req := testutil.NewRequest(s.T(), http.MethodGet, "/requests/"+rec.ID.String())
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleCompliance))
		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("capabilities", func() {
		s.service.EXPECT().Capabilities(gomock.Any(), rec.ID, id.RoleReviewer).
			Return(permission.Capabilities{CanView: true, CanApproveReject: true}, nil)
		req := testutil.NewRequest(s.T(), http.MethodGet, "/requests/"+rec.ID.String()+"/capabilities")
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleReviewer))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
		s.Equal(true, (*resp)["can_approve_reject"])
		s.Equal(false, (*resp)["can_edit"])
		s.Equal("reviewer", (*resp)["role"])
	})

	s.Run("history", func() {
		s.service.EXPECT().History(gomock.Any(), rec.ID, id.RoleAdmin).Return([]audit.Event{
			{Subject: rec.ID.String(), Action: string(audit.EventRequestSubmitted)},
		}, nil)
		req := testutil.NewRequest(s.T(), http.MethodGet, "/requests/"+rec.ID.String()+"/history")
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleAdmin))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[HistoryResponse](s.T(), rr)
		s.Require().Len(resp.Events, 1)
		s.Equal(string(audit.EventRequestSubmitted), resp.Events[0].Action)
	})

	s.Run("worklist", func() {
		s.service.EXPECT().Worklist(gomock.Any(), id.RoleReviewer).Return([]*models.Request{rec}, nil)
		req := testutil.NewRequest(s.T(), http.MethodGet, "/worklist")
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleReviewer))

		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[WorklistResponse](s.T(), rr)
		s.Equal("reviewer", resp.Role)
		s.Require().Len(resp.Requests, 1)
		s.Equal(rec.ID.String(), resp.Requests[0].ID)
	})

	s.Run("update profile", func() {
		s.service.EXPECT().UpdateProfile(gomock.Any(), rec.ID, id.RoleAdmin, models.Profile{Name: "Acme GmbH"}).Return(rec, nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/requests/"+rec.ID.String()+"/profile",
			ProfileRequest{Name: "Acme GmbH"})
		rr := testutil.DoRequest(s.router, s.as(req, id.RoleAdmin))
		testutil.AssertStatusOK(s.T(), rr)
	})
}

func (s *HandlerSuite) TestIngest() {
	s.Run("defaults the origin to unknown", func() {
		rec := sampleRequest(models.StatusQuarantine)
		s.service.EXPECT().Ingest(gomock.Any(), models.Profile{Name: "Acme"}, models.OriginUnknown).Return(rec, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/ingest", IngestRequest{Profile: ProfileRequest{Name: "Acme"}})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("parses the origin", func() {
		rec := sampleRequest(models.StatusQuarantine)
		s.service.EXPECT().Ingest(gomock.Any(), gomock.Any(), models.OriginCompliance).Return(rec, nil)

		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/ingest", `{"origin":"compliance","profile":{"name":"Acme"}}`)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	})

	s.Run("unknown origin is invalid input", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/ingest", `{"origin":"crm","profile":{"name":"Acme"}}`)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}
