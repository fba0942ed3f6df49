package testqr

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/adapters/http/api"
	service "github.com/okian/scout/internal/app"
	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/decode"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(os.Stderr)); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

func TestGenerator(t *testing.T) {
	Convey("Given a generator on the embedded schema", t, func() {
		sc := schema.Default()
		gen := NewGenerator(sc, 7)
		dec := decode.New(sc)
		ctx := context.Background()

		Convey("When generating a match", func() {
			m := gen.Match(12, 6)

			Convey("Then it has a code per scout and per alliance", func() {
				So(m.Number, ShouldEqual, 12)
				So(m.Objective, ShouldHaveLength, 6)
				So(m.Subjective, ShouldHaveLength, 2)
				So(m.Red, ShouldHaveLength, 3)
				So(m.Blue, ShouldHaveLength, 3)
				So(m.QRs(), ShouldHaveLength, 8)
			})

			Convey("Then every objective code decodes to its scout and team", func() {
				teams := slices.Concat(m.Red, m.Blue)
				for i, qr := range m.Objective {
					So(gen.Kind(qr), ShouldEqual, model.KindObjective)
					kind, recs, err := dec.DecodeQR(ctx, qr)
					So(err, ShouldBeNil)
					So(kind, ShouldEqual, model.KindObjective)
					So(recs, ShouldHaveLength, 1)
					So(recs[0]["match_number"], ShouldEqual, 12)
					So(recs[0]["scout_id"], ShouldEqual, i+1)
					So(recs[0]["team_number"], ShouldEqual, teams[i])
					So(recs[0]["timeline"], ShouldNotBeEmpty)
				}
			})

			Convey("Then every subjective code decodes to three teams", func() {
				for _, qr := range m.Subjective {
					So(gen.Kind(qr), ShouldEqual, model.KindSubjective)
					_, recs, err := dec.DecodeQR(ctx, qr)
					So(err, ShouldBeNil)
					So(recs, ShouldHaveLength, 3)
				}
				_, red, _ := dec.DecodeQR(ctx, m.Subjective[0])
				So(red[0]["alliance_color_is_red"], ShouldEqual, true)
				So(red[0]["team_number"], ShouldEqual, m.Red[0])
			})
		})

		Convey("Then the same seed gives the same codes", func() {
			a := NewGenerator(sc, 99).Match(1, 3)
			b := NewGenerator(sc, 99).Match(1, 3)
			So(a, ShouldResemble, b)
		})
	})
}

func TestSubmissionOrder(t *testing.T) {
	Convey("Given generated matches and a duplicate fraction", t, func() {
		cfg := &Config{Matches: 2, ScoutsPerMatch: 4, Duplicates: 0.5, Seed: 3}
		normalize(cfg)
		matches := generateMatches(cfg, schema.Default())
		qrs := submissionOrder(cfg, matches)

		Convey("Then half the codes are repeated", func() {
			So(qrs, ShouldHaveLength, 18)
			distinct := make(map[string]struct{})
			for _, qr := range qrs {
				distinct[qr] = struct{}{}
			}
			So(distinct, ShouldHaveLength, 12)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a scout service behind a test server", t, func() {
		svc := service.New(
			service.WithLogger(logger.Nop()),
			service.WithWorkerCount(1),
			service.WithObserverRange(audit.Range{Min: 1, Max: 4}),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		srv := httptest.NewServer(api.NewServer(svc, svc).Router())
		defer srv.Close()

		out := filepath.Join(t.TempDir(), "out", "qrs.json")
		cfg := &Config{
			BaseURL:        srv.URL,
			Matches:        3,
			FirstMatch:     40,
			ScoutsPerMatch: 4,
			BatchSize:      5,
			Workers:        2,
			Duplicates:     0.25,
			Seed:           11,
			Timeout:        5 * time.Second,
			OutputFile:     out,
		}

		Convey("When the load test runs", func() {
			err := Run(context.Background(), cfg)

			Convey("Then every match is stored and the codes are saved", func() {
				So(err, ShouldBeNil)
				st := svc.GetStats(context.Background())
				So(st.Documents["unconsolidated_obj_tim"], ShouldEqual, 12)
				So(st.Documents["subj_tim"], ShouldEqual, 18)
				So(st.Documents["raw_qr"], ShouldEqual, 18)

				_, statErr := os.Stat(out)
				So(statErr, ShouldBeNil)
			})
		})

		Convey("When the service is unreachable", func() {
			cfg.BaseURL = "http://127.0.0.1:1"
			cfg.Timeout = time.Second
			err := Run(context.Background(), cfg)
			So(err, ShouldNotBeNil)
		})
	})
}
