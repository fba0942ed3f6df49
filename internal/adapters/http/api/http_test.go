package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/adapters/http/api"
	service "github.com/okian/scout/internal/app"
	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/pkg/logger"
)

const (
	objectiveQR  = "+A5$Bs1234$C34$D1230$Ev1.3$FName$GTRUE%Z1678$Y14$X4$W060AD061AE$VN$UN$TN"
	subjectiveQR = "*A5$Bs1234$C34$D1230$Ev1.3$FName$GFALSE%" +
		"A1678$B1$C2$DFALSE$FTRUE$G196#A254$B2$C2$DFALSE$FFALSE$G373#A1323$B3$C3$DTRUE$FFALSE$G746^E1100"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newRouter(svc *service.Service) http.Handler {
	return api.NewServer(svc, svc).Router()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func qrsBody(qrs ...string) string {
	b, _ := json.Marshal(map[string][]string{"qrs": qrs})
	return string(b)
}

func TestQRRoutes(t *testing.T) {
	Convey("Given a running service behind the router", t, func() {
		svc := service.New(service.WithWorkerCount(1), service.WithObserverRange(audit.Range{Min: 14, Max: 15}))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		h := newRouter(svc)

		Convey("When submitting codes", func() {
			w := do(h, http.MethodPost, "/qrs", qrsBody(objectiveQR, subjectiveQR, objectiveQR, "?junk"))

			Convey("Then new codes are accepted and the rest reported", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
				var res service.SubmitResult
				decode(w, &res)
				So(res.Accepted, ShouldHaveLength, 2)
				So(res.Duplicates, ShouldEqual, 1)
				So(res.Invalid, ShouldResemble, []string{"?junk"})

				got := do(h, http.MethodGet, "/qrs/"+res.Accepted[0], "")
				So(got.Code, ShouldEqual, http.StatusOK)
				So(got.Body.String(), ShouldContainSubstring, `"blocklisted":false`)
			})

			Convey("Then only duplicates is a plain OK", func() {
				w := do(h, http.MethodPost, "/qrs", qrsBody(objectiveQR))
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When a pass runs", func() {
			do(h, http.MethodPost, "/qrs", qrsBody(objectiveQR, subjectiveQR))
			w := do(h, http.MethodPost, "/passes", "")

			Convey("Then the result and the stored records are visible", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res service.PassResult
				decode(w, &res)
				So(res.Processed, ShouldEqual, 2)
				So(res.Objective, ShouldEqual, 1)
				So(res.Subjective, ShouldEqual, 3)

				tims := do(h, http.MethodGet, "/tims/subjective?match=34&team=254", "")
				So(tims.Code, ShouldEqual, http.StatusOK)
				var body struct {
					Records []map[string]any `json:"records"`
				}
				decode(tims, &body)
				So(body.Records, ShouldHaveLength, 1)
				So(body.Records[0]["team_number"], ShouldEqual, "254")

				au := do(h, http.MethodGet, "/audit", "")
				So(au.Code, ShouldEqual, http.StatusOK)
				var warnings struct {
					Warnings []audit.Warning `json:"warnings"`
				}
				decode(au, &warnings)
				So(warnings.Warnings, ShouldResemble, []audit.Warning{
					{Kind: audit.MissingObserver, MatchNumber: 34, ScoutID: 15},
				})
			})

			Convey("Then an empty filter result is an empty list", func() {
				tims := do(h, http.MethodGet, "/tims/objective?match=99", "")
				So(tims.Code, ShouldEqual, http.StatusOK)
				So(tims.Body.String(), ShouldContainSubstring, `"records":[]`)
			})
		})

		Convey("When correcting a stored code", func() {
			w := do(h, http.MethodPost, "/qrs", qrsBody(objectiveQR))
			var res service.SubmitResult
			decode(w, &res)
			id := res.Accepted[0]

			Convey("Then blocklist and override succeed", func() {
				So(do(h, http.MethodPut, "/qrs/"+id+"/override", `{"scout_id": 15}`).Code, ShouldEqual, http.StatusNoContent)
				So(do(h, http.MethodPost, "/qrs/"+id+"/blocklist", "").Code, ShouldEqual, http.StatusNoContent)

				got := do(h, http.MethodGet, "/qrs/"+id, "")
				So(got.Body.String(), ShouldContainSubstring, `"blocklisted":true`)
				So(got.Body.String(), ShouldContainSubstring, `"scout_id":15`)
			})

			Convey("Then bad corrections are rejected", func() {
				So(do(h, http.MethodPut, "/qrs/"+id+"/override", `{"timeline": []}`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPut, "/qrs/"+id+"/override", `{`).Code, ShouldEqual, http.StatusBadRequest)
				So(do(h, http.MethodPost, "/qrs/missing/blocklist", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("Then malformed requests are rejected", func() {
			So(do(h, http.MethodPost, "/qrs", `{"qrs": []}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/qrs", `not json`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/tims/pit", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/tims/objective?match=x", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/qrs/nope", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodDelete, "/qrs", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestPitRoutes(t *testing.T) {
	Convey("Given a running service behind the router", t, func() {
		svc := service.New(service.WithWorkerCount(1))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		h := newRouter(svc)

		Convey("When a pit observation is consolidated synchronously", func() {
			w := do(h, http.MethodPost, "/pit/obj_pit?sync=true", `{"team_number": 3448, "drivetrain": 2, "drivetrain_motors": 4}`)

			Convey("Then the stored document is returned and readable", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"drivetrain":"swerve"`)

				got := do(h, http.MethodGet, "/pit/obj_pit/3448", "")
				So(got.Code, ShouldEqual, http.StatusOK)
				So(got.Body.String(), ShouldContainSubstring, `"drivetrain_motors":4`)
			})
		})

		Convey("When a pit observation is queued", func() {
			w := do(h, http.MethodPost, "/pit/subj_pit", `{"team_number": "1678", "pit_notes": "tidy"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			Convey("Then a worker eventually stores it", func() {
				var got *httptest.ResponseRecorder
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					got = do(h, http.MethodGet, "/pit/subj_pit/1678", "")
					if got.Code == http.StatusOK {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(got.Code, ShouldEqual, http.StatusOK)
				So(got.Body.String(), ShouldContainSubstring, `"pit_notes":"tidy"`)
			})
		})

		Convey("When superscouts write about a team", func() {
			So(do(h, http.MethodPost, "/superscout/ss_team", `{"team_number": "254", "team_notes": "fast"}`).Code, ShouldEqual, http.StatusCreated)
			So(do(h, http.MethodPost, "/superscout/ss_team", `{"team_number": "254", "team_notes": "loud"}`).Code, ShouldEqual, http.StatusCreated)

			Convey("Then the merged view joins their notes", func() {
				got := do(h, http.MethodGet, "/superscout/teams/254", "")
				So(got.Code, ShouldEqual, http.StatusOK)
				So(got.Body.String(), ShouldContainSubstring, `"team_notes":"fast + loud"`)
			})
		})

		Convey("Then bad pit requests are rejected", func() {
			So(do(h, http.MethodPost, "/pit/bogus", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/pit/obj_pit?sync=1", `{"no_such_field": 1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/pit/obj_pit?sync=1", `{"drivetrain": 1}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/pit/obj_pit/1", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodPost, "/superscout/obj_pit", `{}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodGet, "/superscout/teams/1", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given a service that has not started", t, func() {
		svc := service.New()
		h := newRouter(svc)

		Convey("Then business routes report unavailability", func() {
			w := do(h, http.MethodPost, "/passes", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			var body map[string]string
			decode(w, &body)
			So(body["code"], ShouldEqual, "not_started")
		})

		Convey("Then stats still answer", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var st service.Stats
			decode(w, &st)
			So(st.Started, ShouldBeFalse)
		})

		Convey("Then healthz serves the metrics exposition", func() {
			do(h, http.MethodGet, "/stats", "")
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})
	})
}
